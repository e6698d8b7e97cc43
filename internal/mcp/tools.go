package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/issuematch-mcp/internal/matcher"
	"github.com/dshills/issuematch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNoContent     = -32005 // None of the files could be retrieved
)

const (
	defaultRecentRuns = 10
	maxRecentRuns     = 100
)

// MatchRequest is the input of a match, shared by the tool and the CLI
type MatchRequest struct {
	Issue types.IssueQuery       `json:"issue"`
	Files []types.FileDescriptor `json:"files"`
}

// MatchResponse decorates a pipeline result with request details
type MatchResponse struct {
	Matches     []types.MatchResult `json:"matches"`
	Overview    string              `json:"overview"`
	Repo        string              `json:"repo"`
	Description string              `json:"description"`
	IssueNum    int                 `json:"issuenum"`
	CacheHit    bool                `json:"cache_hit"`
	DurationMs  int64               `json:"duration_ms"`
}

// Validation errors
var (
	ErrIssueRequired = errors.New("issue title or description is required")
	ErrFilesRequired = errors.New("files must be a non-empty array")
	ErrFilePath      = errors.New("every file needs a path or name")
)

// Validate checks required fields and fills a missing file path from its name
func (r *MatchRequest) Validate() error {
	if strings.TrimSpace(r.Issue.Title) == "" && strings.TrimSpace(r.Issue.Description) == "" {
		return ErrIssueRequired
	}
	if len(r.Files) == 0 {
		return ErrFilesRequired
	}
	for i := range r.Files {
		f := &r.Files[i]
		if f.Path == "" {
			f.Path = f.Name
		}
		if f.Path == "" {
			return fmt.Errorf("%w: index %d", ErrFilePath, i)
		}
	}
	return nil
}

// Match runs the pipeline for req and decorates the result
func (s *Server) Match(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	start := time.Now()
	result, err := s.matcher.Match(ctx, req.Issue, req.Files)
	if err != nil {
		return nil, err
	}

	repo := req.Issue.Repo
	if req.Issue.Owner != "" && req.Issue.Repo != "" {
		repo = req.Issue.Owner + "/" + req.Issue.Repo
	}
	matches := result.Matches
	if matches == nil {
		matches = []types.MatchResult{}
	}

	return &MatchResponse{
		Matches:     matches,
		Overview:    result.Overview,
		Repo:        repo,
		Description: req.Issue.Description,
		IssueNum:    req.Issue.Number,
		CacheHit:    result.CacheHit,
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

// handleMatchFiles handles the match_files tool invocation
func (s *Server) handleMatchFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, err := parseMatchRequest(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid match request", map[string]interface{}{
			"reason": err.Error(),
		})
	}

	resp, err := s.Match(ctx, req)
	if err != nil {
		return nil, toMCPError(err, len(req.Files))
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Arguments are optional
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := getIntDefault(args, "recent", defaultRecentRuns)
	if limit < 0 || limit > maxRecentRuns {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("recent must be between 0 and %d", maxRecentRuns), map[string]interface{}{
			"param": "recent",
			"value": limit,
		})
	}

	response := map[string]interface{}{
		"server":  ServerName,
		"version": ServerVersion,
		"matcher": s.matcher.Stats(),
	}

	if s.journal == nil {
		response["journal"] = map[string]interface{}{"enabled": false}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	status, err := s.journal.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get journal status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	recent := []map[string]interface{}{}
	if limit > 0 {
		runs, err := s.journal.ListRecentRuns(ctx, limit)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list runs", map[string]interface{}{
				"error": err.Error(),
			})
		}
		for _, run := range runs {
			entry := map[string]interface{}{
				"id":              run.ID,
				"issue_title":     run.IssueTitle,
				"repo":            run.Repo,
				"status":          run.Status,
				"files_requested": run.FilesRequested,
				"files_fetched":   run.FilesFetched,
				"match_count":     run.MatchCount,
				"cache_hit":       run.CacheHit,
				"duration_ms":     run.Duration.Milliseconds(),
				"created_at":      run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
			if run.Error != "" {
				entry["error"] = run.Error
			}
			recent = append(recent, entry)
		}
	}

	response["journal"] = map[string]interface{}{
		"enabled":        true,
		"total_runs":     status.TotalRuns,
		"runs_by_status": status.RunsByStatus,
		"total_failures": status.TotalFailures,
		"size_mb":        fmt.Sprintf("%.2f", status.SizeMB),
		"schema_version": status.SchemaVersion,
		"build_mode":     status.BuildMode,
		"recent_runs":    recent,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// parseMatchRequest decodes tool arguments into a validated MatchRequest
func parseMatchRequest(args map[string]interface{}) (MatchRequest, error) {
	var req MatchRequest
	if _, ok := args["issue"].(map[string]interface{}); !ok {
		return req, errors.New("issue must be an object")
	}
	if _, ok := args["files"].([]interface{}); !ok {
		return req, ErrFilesRequired
	}

	data, err := json.Marshal(args)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// toMCPError maps pipeline errors to MCP error codes
func toMCPError(err error, filesRequested int) error {
	if errors.Is(err, matcher.ErrNoContent) {
		return newMCPError(ErrorCodeNoContent, "no file content could be retrieved", map[string]interface{}{
			"files_requested": filesRequested,
		})
	}

	data := map[string]interface{}{"error": err.Error()}
	var pe *matcher.PipelineError
	if errors.As(err, &pe) {
		data["stage"] = pe.Stage
	}
	return newMCPError(ErrorCodeInternalError, "match pipeline failed", data)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
