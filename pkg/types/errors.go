package types

import "errors"

// Domain errors for type validation
var (
	// Match result errors
	ErrMissingFileName   = errors.New("file name is required")
	ErrInvalidMatchScore = errors.New("match score must be between 0 and 1")
	ErrUnorderedMatches  = errors.New("matches must be ordered by descending score")
)
