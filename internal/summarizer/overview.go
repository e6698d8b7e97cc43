package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/issuematch-mcp/pkg/types"
)

const (
	// Placeholder is the overview reported when summarization fails
	Placeholder = "Overview unavailable."
	// DefaultBudget caps the characters of file content placed in a prompt
	DefaultBudget = 15000
)

// Priority tiers, lowest first
const (
	TierSource = iota
	TierDocs
	TierConfig
	TierOther
)

// tierPatterns are matched against the lowercased, slash-separated path
var tierPatterns = [][]string{
	TierSource: {"**/*.{go,py,js,ts,tsx,jsx,java,rs,c,cc,cpp,h,hpp,rb,php,cs,kt,swift,scala}"},
	TierDocs:   {"**/*.{md,rst,txt}", "**/readme*"},
	TierConfig: {"**/*.{json,yaml,yml,toml,ini,cfg}", "**/dockerfile", "**/makefile"},
}

// Tier returns the priority tier of a file path
func Tier(path string) int {
	name := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	for tier, patterns := range tierPatterns {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return tier
			}
		}
	}
	return TierOther
}

// Overviewer produces repository overviews for the match pipeline
type Overviewer struct {
	summarizer Summarizer
	budget     int
	logger     *slog.Logger
}

// Option configures an Overviewer
type Option func(*Overviewer)

// WithBudget sets the character budget for file content
func WithBudget(budget int) Option {
	return func(o *Overviewer) {
		if budget > 0 {
			o.budget = budget
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Overviewer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOverviewer wraps s
func NewOverviewer(s Summarizer, opts ...Option) *Overviewer {
	o := &Overviewer{
		summarizer: s,
		budget:     DefaultBudget,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "summarizer")
	return o
}

// Overview summarizes files in the context of issue.
// It never fails: any summarizer error or panic yields Placeholder.
func (o *Overviewer) Overview(ctx context.Context, issue types.IssueQuery, files []types.FileContent) (overview string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("summarizer panicked", "panic", r)
			overview = Placeholder
		}
	}()

	prompt := BuildPrompt(issue, files, o.budget)
	text, err := o.summarizer.Summarize(ctx, prompt)
	if err != nil {
		o.logger.Warn("overview generation failed", "error", err, "files", len(files))
		return Placeholder
	}
	return strings.TrimSpace(text)
}

// BuildPrompt assembles the analysis prompt.
// Files are ordered by Tier, keeping input order within a tier, and appended
// until budget characters are used. The first file is truncated when it alone
// exceeds the budget; every later file that does not fit is omitted together
// with all files after it, and the omission is noted.
func BuildPrompt(issue types.IssueQuery, files []types.FileContent, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}

	ordered := make([]types.FileContent, len(files))
	copy(ordered, files)
	sort.SliceStable(ordered, func(i, j int) bool {
		return Tier(ordered[i].Path) < Tier(ordered[j].Path)
	})

	var sections strings.Builder
	used, included := 0, 0
	for _, f := range ordered {
		block := fmt.Sprintf("### %s\n%s\n\n", f.Path, f.Content)
		size := utf8.RuneCountInString(block)

		if used+size > budget {
			if included == 0 {
				block = truncateRunes(block, budget) + "\n...\n\n"
				sections.WriteString(block)
				included++
			}
			break
		}

		sections.WriteString(block)
		used += size
		included++
	}

	var b strings.Builder
	b.WriteString("You are an assistant specialized in debugging and issue resolution.\n")
	b.WriteString("Analyze the following issue and the related repository files.\n\n")
	b.WriteString("## Issue\n")
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	if issue.Repo != "" {
		fmt.Fprintf(&b, "Repository: %s/%s\n", issue.Owner, issue.Repo)
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n\n", issue.Description)

	b.WriteString("## Related Files\n")
	b.WriteString(sections.String())
	if omitted := len(ordered) - included; omitted > 0 {
		fmt.Fprintf(&b, "(%d lower-priority files omitted)\n\n", omitted)
	}

	b.WriteString("## Expected Output\n")
	b.WriteString("1. Root cause: explain why the issue occurs and which code is involved.\n")
	b.WriteString("2. Recommended solutions, ranked from most to least preferred, with code snippets where useful.\n")
	b.WriteString("3. Actionable steps to implement the best solution, noting pitfalls.\n")
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
