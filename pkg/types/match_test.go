package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDescriptorDisplayName(t *testing.T) {
	assert.Equal(t, "parser.py", FileDescriptor{Name: "parser.py", Path: "src/parser.py"}.DisplayName())
	assert.Equal(t, "parser.py", FileDescriptor{Path: "src/parser.py"}.DisplayName())
}

func TestIssueQueryText(t *testing.T) {
	q := IssueQuery{Title: "Fix crash on null input", Description: "NPE in parser"}
	assert.Equal(t, "Fix crash on null input NPE in parser", q.Text())
}

func TestMatchResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  MatchResult
		wantErr error
	}{
		{name: "valid", result: MatchResult{FileName: "a.go", MatchScore: 0.5}},
		{name: "bounds inclusive", result: MatchResult{FileName: "a.go", MatchScore: 1}},
		{name: "missing name", result: MatchResult{MatchScore: 0.5}, wantErr: ErrMissingFileName},
		{name: "negative", result: MatchResult{FileName: "a.go", MatchScore: -0.1}, wantErr: ErrInvalidMatchScore},
		{name: "above one", result: MatchResult{FileName: "a.go", MatchScore: 1.01}, wantErr: ErrInvalidMatchScore},
		{name: "nan", result: MatchResult{FileName: "a.go", MatchScore: math.NaN()}, wantErr: ErrInvalidMatchScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPipelineResultValidate(t *testing.T) {
	ordered := &PipelineResult{Matches: []MatchResult{
		{FileName: "a.go", MatchScore: 0.9},
		{FileName: "b.go", MatchScore: 0.9},
		{FileName: "c.go", MatchScore: 0.2},
	}}
	assert.NoError(t, ordered.Validate())
	assert.NoError(t, (&PipelineResult{}).Validate())

	unordered := &PipelineResult{Matches: []MatchResult{
		{FileName: "a.go", MatchScore: 0.2},
		{FileName: "b.go", MatchScore: 0.9},
	}}
	assert.ErrorIs(t, unordered.Validate(), ErrUnorderedMatches)
}

func TestPipelineResultJSON(t *testing.T) {
	result := PipelineResult{
		Matches:  []MatchResult{{FileName: "parser.py", MatchScore: 0.19, ContentLocation: "https://example.com/parser.py"}},
		CacheHit: true,
	}
	data, err := json.Marshal(result)
	require.NoError(t, err)

	assert.JSONEq(t, `{"matches":[{"file_name":"parser.py","match_score":0.19,"download_url":"https://example.com/parser.py"}]}`, string(data))
}
