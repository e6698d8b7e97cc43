// Package mcp exposes the issue-to-file matcher as Model Context Protocol
// tools over stdio.
//
// # Tools
//
// match_files ranks candidate files for an issue:
//
//	{
//	  "issue": {"owner": "acme", "repo": "widgets", "number": 42,
//	            "title": "Fix crash on null input", "description": "NPE in parser"},
//	  "files": [
//	    {"name": "parser.py", "path": "src/parser.py",
//	     "download_url": "https://raw.githubusercontent.com/acme/widgets/main/src/parser.py"}
//	  ]
//	}
//
// The response carries the ranked matches, the optional overview and request
// details:
//
//	{
//	  "matches": [{"file_name": "src/parser.py", "match_score": 0.19, "download_url": "..."}],
//	  "overview": "",
//	  "repo": "acme/widgets",
//	  "description": "NPE in parser",
//	  "issuenum": 42,
//	  "cache_hit": false,
//	  "duration_ms": 312
//	}
//
// get_status reports cache statistics, pipeline counters and, when the run
// journal is enabled, its totals and most recent runs.
//
// # Errors
//
// Failures are returned as *MCPError values:
//
//   - -32602: malformed arguments
//   - -32005: none of the files could be retrieved
//   - -32603: any other pipeline failure, with the failing stage in Data
package mcp
