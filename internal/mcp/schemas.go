package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// matchFilesTool returns the tool definition for match_files
func matchFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "match_files",
		Description: "Rank repository files by semantic relevance to a GitHub issue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"issue": map[string]interface{}{
					"type":        "object",
					"description": "The issue to match files against",
					"properties": map[string]interface{}{
						"owner": map[string]interface{}{
							"type":        "string",
							"description": "Repository owner",
						},
						"repo": map[string]interface{}{
							"type":        "string",
							"description": "Repository name",
						},
						"number": map[string]interface{}{
							"type":        "integer",
							"description": "Issue number, echoed in the response",
						},
						"title": map[string]interface{}{
							"type":        "string",
							"description": "Issue title",
						},
						"description": map[string]interface{}{
							"type":        "string",
							"description": "Issue body",
						},
						"labels": map[string]interface{}{
							"type":        "array",
							"description": "Issue labels (informational)",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
					},
				},
				"files": map[string]interface{}{
					"type":        "array",
					"description": "Candidate files; order is part of the cache key",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name": map[string]interface{}{
								"type":        "string",
								"description": "File name",
							},
							"path": map[string]interface{}{
								"type":        "string",
								"description": "Repository-relative path",
							},
							"download_url": map[string]interface{}{
								"type":        "string",
								"description": "URL of the raw file content",
							},
						},
						"required": []string{"path", "download_url"},
					},
				},
			},
			Required: []string{"issue", "files"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report cache statistics, pipeline counters and recent match runs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"recent": map[string]interface{}{
					"type":        "integer",
					"description": "Number of recent runs to include (0-100)",
					"default":     10,
					"minimum":     0,
					"maximum":     100,
				},
			},
		},
	}
}
