package types

import (
	"math"
	"path"
)

// FileDescriptor identifies a candidate file supplied by the caller
type FileDescriptor struct {
	Name            string `json:"name,omitempty"`
	Path            string `json:"path"`
	ContentLocation string `json:"download_url"`
}

// DisplayName returns Name, falling back to the base name of Path
func (fd FileDescriptor) DisplayName() string {
	if fd.Name != "" {
		return fd.Name
	}
	return path.Base(fd.Path)
}

// FileContent is the retrieved text of one FileDescriptor
type FileContent struct {
	Path            string
	Content         string
	ContentLocation string
}

// IssueQuery describes the issue files are matched against.
// Only Title and Description take part in embedding and fingerprinting.
type IssueQuery struct {
	Owner       string   `json:"owner,omitempty"`
	Repo        string   `json:"repo,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels,omitempty"`
	Number      int      `json:"number,omitempty"`
}

// Text returns the verbatim text embedded for the issue
func (q IssueQuery) Text() string {
	return q.Title + " " + q.Description
}

// MatchResult is a single ranked file
type MatchResult struct {
	FileName        string  `json:"file_name"`
	MatchScore      float64 `json:"match_score"`
	ContentLocation string  `json:"download_url"`
}

// Validate checks the score bounds and required fields
func (m *MatchResult) Validate() error {
	if m.FileName == "" {
		return ErrMissingFileName
	}
	if math.IsNaN(m.MatchScore) || m.MatchScore < 0 || m.MatchScore > 1 {
		return ErrInvalidMatchScore
	}
	return nil
}

// PipelineResult is the value produced by a match and stored in the cache
type PipelineResult struct {
	Matches  []MatchResult `json:"matches"`
	Overview string        `json:"overview,omitempty"`

	// CacheHit reports whether the result was served from the cache
	CacheHit bool `json:"-"`
}

// Validate checks every match and the descending order of scores
func (r *PipelineResult) Validate() error {
	for i := range r.Matches {
		if err := r.Matches[i].Validate(); err != nil {
			return err
		}
		if i > 0 && r.Matches[i].MatchScore > r.Matches[i-1].MatchScore {
			return ErrUnorderedMatches
		}
	}
	return nil
}
