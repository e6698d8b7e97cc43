package ranker

import (
	"math"
	"sort"

	"github.com/dshills/issuematch-mcp/pkg/types"
)

const (
	// DefaultThreshold is the similarity a file must exceed to be reported
	DefaultThreshold = 0.1
	// DefaultTopK is the maximum number of matches returned
	DefaultTopK = 3
)

// Candidate is a retrieved file with its embedding
type Candidate struct {
	Path            string
	ContentLocation string
	Vector          []float32
}

// Options configures ranking
type Options struct {
	Threshold float64 // similarity a candidate must exceed
	TopK      int     // non-positive selects DefaultTopK
}

// DefaultOptions returns the standard ranking options
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, TopK: DefaultTopK}
}

// Ranker scores candidates against an issue vector
type Ranker struct {
	threshold float64
	topK      int
}

// New creates a Ranker
func New(opts Options) *Ranker {
	if math.IsNaN(opts.Threshold) {
		opts.Threshold = DefaultThreshold
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Ranker{threshold: opts.Threshold, topK: opts.TopK}
}

// Threshold returns the minimum similarity a match must exceed
func (r *Ranker) Threshold() float64 { return r.threshold }

// TopK returns the maximum number of matches
func (r *Ranker) TopK() int { return r.topK }

type scored struct {
	candidate Candidate
	score     float64
}

// Rank returns the best candidates by cosine similarity to issue.
// Only similarities strictly above the threshold are kept. Candidates are
// ordered by unrounded similarity, highest first, with ties in input order;
// emitted scores are rounded to two decimals and clamped to [0, 1].
func (r *Ranker) Rank(issue []float32, candidates []Candidate) []types.MatchResult {
	kept := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := CosineSimilarity(issue, c.Vector)
		if score > r.threshold {
			kept = append(kept, scored{candidate: c, score: score})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	if len(kept) > r.topK {
		kept = kept[:r.topK]
	}

	results := make([]types.MatchResult, len(kept))
	for i, s := range kept {
		results[i] = types.MatchResult{
			FileName:        s.candidate.Path,
			MatchScore:      roundScore(s.score),
			ContentLocation: s.candidate.ContentLocation,
		}
	}
	return results
}

// CosineSimilarity computes dot(a,b)/(|a||b|) in float64.
// Mismatched lengths, zero-norm vectors and non-finite results yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// roundScore rounds to two decimals and clamps into [0, 1]
func roundScore(score float64) float64 {
	rounded := math.Round(score*100) / 100
	return math.Max(0, math.Min(1, rounded))
}
