// Package types provides shared type definitions for the issuematch MCP server.
//
// These types cross package boundaries: the MCP layer decodes requests into
// IssueQuery and FileDescriptor values, the fetcher produces FileContent, and
// the matcher returns a PipelineResult that is also the cached value.
//
// # Core Types
//
//	issue := types.IssueQuery{
//	    Title:       "Fix crash on null input",
//	    Description: "NPE in parser",
//	}
//
//	files := []types.FileDescriptor{
//	    {Path: "parser.py", ContentLocation: "https://raw.githubusercontent.com/o/r/main/parser.py"},
//	}
//
// JSON tags follow the wire names used by clients (file_name, match_score,
// download_url), so results can be encoded without an extra mapping layer.
//
// # Validation
//
// MatchResult and PipelineResult expose Validate methods that check score
// bounds and ordering; they return the sentinel errors in errors.go.
package types
