package matcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent is returned when no file content could be retrieved.
	// Results of such calls are never cached.
	ErrNoContent = errors.New("no file content could be retrieved")

	// ErrPipeline marks every other failure of a match call
	ErrPipeline = errors.New("match pipeline failed")
)

// Stage names a step of the match pipeline
type Stage string

const (
	StageCacheCheck Stage = "cache_check"
	StageFetch      Stage = "fetch"
	StageEmbed      Stage = "embed"
	StageRank       Stage = "rank"
	StageSummarize  Stage = "summarize"
	StageStore      Stage = "store"
)

// PipelineError reports the stage a match call failed in.
// It matches ErrPipeline and its cause with errors.Is.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("match pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	return []error{ErrPipeline, e.Err}
}

// panicError converts a recovered value into an error
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
