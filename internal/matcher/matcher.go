package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/issuematch-mcp/internal/cache"
	"github.com/dshills/issuematch-mcp/internal/embedder"
	"github.com/dshills/issuematch-mcp/internal/fetcher"
	"github.com/dshills/issuematch-mcp/internal/ranker"
	"github.com/dshills/issuematch-mcp/internal/storage"
	"github.com/dshills/issuematch-mcp/pkg/types"
)

const (
	// DefaultEmbedWorkers bounds concurrent embedding calls across all matches
	DefaultEmbedWorkers = 5
	// trimEvery is how many journaled runs pass between journal trims
	trimEvery = 100
)

// ContentFetcher retrieves file contents.
// Failed files are reported, never returned as contents.
type ContentFetcher interface {
	FetchAll(ctx context.Context, files []types.FileDescriptor) ([]types.FileContent, []fetcher.Failure)
}

// OverviewProvider produces the optional overview of a result.
// It must not fail; errors are reported through the returned text.
type OverviewProvider interface {
	Overview(ctx context.Context, issue types.IssueQuery, files []types.FileContent) string
}

// Config holds the collaborators of a Matcher
type Config struct {
	Cache      *cache.Cache      // required
	Fetcher    ContentFetcher    // required
	Embedder   embedder.Embedder // required
	Ranker     *ranker.Ranker    // defaults to ranker.DefaultOptions
	Overviewer OverviewProvider  // nil leaves Overview empty
	Journal    storage.RunStore  // nil disables run journaling

	EmbedWorkers   int64
	JournalMaxRuns int // runs kept by periodic trims, 0 keeps all
	Logger         *slog.Logger
}

// Matcher runs the issue-to-file match pipeline.
// A Matcher is safe for concurrent use; create one per process so the
// embedding pool is shared by every call.
type Matcher struct {
	cache      *cache.Cache
	fetcher    ContentFetcher
	embedder   embedder.Embedder
	ranker     *ranker.Ranker
	overviewer OverviewProvider
	journal    storage.RunStore

	embedPool      *semaphore.Weighted
	embedWorkers   int64
	journalMaxRuns int
	logger         *slog.Logger

	counters counters
}

type counters struct {
	runs         atomic.Uint64
	cacheHits    atomic.Uint64
	noContent    atomic.Uint64
	errors       atomic.Uint64
	canceled     atomic.Uint64
	filesFetched atomic.Uint64
	filesFailed  atomic.Uint64
	embedDropped atomic.Uint64
	journaled    atomic.Uint64
}

// Stats is a snapshot of matcher activity
type Stats struct {
	Cache         cache.Stats `json:"cache"`
	EmbedWorkers  int64       `json:"embed_workers"`
	EmbedProvider string      `json:"embed_provider"`
	Runs          uint64      `json:"runs"`
	CacheHits     uint64      `json:"cache_hits"`
	NoContent     uint64      `json:"no_content"`
	Errors        uint64      `json:"errors"`
	Canceled      uint64      `json:"canceled"`
	FilesFetched  uint64      `json:"files_fetched"`
	FilesFailed   uint64      `json:"files_failed"`
	EmbedDropped  uint64      `json:"embed_dropped"`
}

// New creates a Matcher
func New(cfg Config) (*Matcher, error) {
	if cfg.Cache == nil {
		return nil, errors.New("matcher: cache is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("matcher: fetcher is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("matcher: embedder is required")
	}
	if cfg.Ranker == nil {
		cfg.Ranker = ranker.New(ranker.DefaultOptions())
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = DefaultEmbedWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Matcher{
		cache:          cfg.Cache,
		fetcher:        cfg.Fetcher,
		embedder:       cfg.Embedder,
		ranker:         cfg.Ranker,
		overviewer:     cfg.Overviewer,
		journal:        cfg.Journal,
		embedPool:      semaphore.NewWeighted(cfg.EmbedWorkers),
		embedWorkers:   cfg.EmbedWorkers,
		journalMaxRuns: cfg.JournalMaxRuns,
		logger:         cfg.Logger.With("component", "matcher"),
	}, nil
}

// runState tracks one Match call for error reporting and journaling
type runState struct {
	stage    Stage
	run      storage.Run
	failures []fetcher.Failure
}

// Match ranks files by relevance to issue.
//
// Identical requests within the cache TTL are answered from the cache without
// fetching. ErrNoContent is returned when files is empty or no file could be
// retrieved. Every other failure, including cancellation and recovered
// panics, is a *PipelineError. Only successful results are cached.
func (m *Matcher) Match(ctx context.Context, issue types.IssueQuery, files []types.FileDescriptor) (result *types.PipelineResult, err error) {
	start := time.Now()
	ctx, span := startMatchSpan(ctx, issue, len(files))

	st := &runState{
		stage: StageCacheCheck,
		run: storage.Run{
			IssueTitle:     issue.Title,
			Repo:           repoName(issue),
			FilesRequested: len(files),
		},
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("match pipeline panicked", "stage", st.stage, "panic", r)
			result, err = nil, &PipelineError{Stage: st.stage, Err: panicError(r)}
		}
		st.run.Duration = time.Since(start)
		m.finish(ctx, st, result, err)
		endSpan(span, err)
	}()

	return m.match(ctx, st, issue, files)
}

func (m *Matcher) match(ctx context.Context, st *runState, issue types.IssueQuery, files []types.FileDescriptor) (*types.PipelineResult, error) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	key := cache.MakeKey(cache.KeyPayload{
		IssueTitle:       issue.Title,
		IssueDescription: issue.Description,
		FilePaths:        paths,
	})
	st.run.CacheKey = key

	if len(files) == 0 {
		return nil, ErrNoContent
	}

	if cached, ok := m.cache.Get(key); ok {
		st.run.CacheHit = true
		cached.CacheHit = true
		st.run.MatchCount = len(cached.Matches)
		m.logger.Debug("cache hit", "key", key, "matches", len(cached.Matches))
		return cached, nil
	}

	// Fetch files while the issue is embedded
	st.stage = StageFetch
	var (
		issueVec []float32
		issueErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				issueErr = panicError(r)
			}
		}()
		issueVec, issueErr = m.embedIssue(ctx, issue)
	}()

	fetchCtx, fetchSpan := startStageSpan(ctx, StageFetch, attribute.Int("issuematch.files.requested", len(files)))
	contents, failures := m.fetcher.FetchAll(fetchCtx, files)
	fetchSpan.SetAttributes(
		attribute.Int("issuematch.files.fetched", len(contents)),
		attribute.Int("issuematch.files.failed", len(failures)),
	)
	endSpan(fetchSpan, nil)
	wg.Wait()

	st.failures = failures
	st.run.FilesFetched = len(contents)

	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Stage: StageFetch, Err: err}
	}
	if len(contents) == 0 {
		return nil, ErrNoContent
	}

	st.stage = StageEmbed
	if issueErr != nil {
		return nil, &PipelineError{Stage: StageEmbed, Err: fmt.Errorf("embed issue: %w", issueErr)}
	}

	sortByRequestOrder(contents, files)

	candidates, err := m.embedFiles(ctx, contents)
	if err != nil {
		return nil, err
	}

	st.stage = StageRank
	_, rankSpan := startStageSpan(ctx, StageRank, attribute.Int("issuematch.candidates", len(candidates)))
	result := &types.PipelineResult{Matches: m.ranker.Rank(issueVec, candidates)}
	err = result.Validate()
	endSpan(rankSpan, err)
	if err != nil {
		return nil, &PipelineError{Stage: StageRank, Err: err}
	}
	st.run.MatchCount = len(result.Matches)

	if m.overviewer != nil {
		st.stage = StageSummarize
		sumCtx, sumSpan := startStageSpan(ctx, StageSummarize)
		result.Overview = m.overviewer.Overview(sumCtx, issue, contents)
		endSpan(sumSpan, nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Stage: st.stage, Err: err}
	}

	st.stage = StageStore
	if err := m.cache.Set(key, result); err != nil {
		// The result is still valid for this caller
		m.logger.Warn("failed to cache result", "key", key, "error", err)
	}

	return result, nil
}

// embedIssue embeds the verbatim issue text; blank issues yield no vector
func (m *Matcher) embedIssue(ctx context.Context, issue types.IssueQuery) ([]float32, error) {
	text := issue.Text()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return m.embed(ctx, text)
}

// embed runs one embedding call on the shared pool
func (m *Matcher) embed(ctx context.Context, text string) ([]float32, error) {
	if err := m.embedPool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.embedPool.Release(1)

	return embedder.Embed(ctx, m.embedder, text)
}

// embedFiles embeds preprocessed file contents concurrently.
// A file whose embedding fails is dropped; only cancellation fails the stage.
func (m *Matcher) embedFiles(ctx context.Context, contents []types.FileContent) ([]ranker.Candidate, error) {
	ctx, span := startStageSpan(ctx, StageEmbed, attribute.Int("issuematch.files", len(contents)))

	candidates := make([]ranker.Candidate, len(contents))
	ok := make([]bool, len(contents))

	g, gctx := errgroup.WithContext(ctx)
	for i, fc := range contents {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PipelineError{Stage: StageEmbed, Err: panicError(r)}
				}
			}()

			candidates[i] = ranker.Candidate{Path: fc.Path, ContentLocation: fc.ContentLocation}

			text := embedder.Preprocess(fc.Content)
			if text == "" {
				// Nothing to embed; the file ranks with similarity 0
				ok[i] = true
				return nil
			}

			vec, err := m.embed(gctx, text)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				m.counters.embedDropped.Add(1)
				m.logger.Warn("dropping file after embedding failure", "path", fc.Path, "error", err)
				return nil
			}
			candidates[i].Vector = vec
			ok[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		endSpan(span, err)
		var pe *PipelineError
		if errors.As(err, &pe) {
			return nil, pe
		}
		// Cancellation of the caller reports the caller's error
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &PipelineError{Stage: StageEmbed, Err: err}
	}

	kept := candidates[:0]
	for i, c := range candidates {
		if ok[i] {
			kept = append(kept, c)
		}
	}
	span.SetAttributes(attribute.Int("issuematch.embedded", len(kept)))
	endSpan(span, nil)
	return kept, nil
}

// sortByRequestOrder restores the request order of fetched contents,
// which arrive in completion order
func sortByRequestOrder(contents []types.FileContent, files []types.FileDescriptor) {
	order := make(map[string]int, len(files))
	for i, f := range files {
		if _, seen := order[f.Path]; !seen {
			order[f.Path] = i
		}
	}
	sort.SliceStable(contents, func(i, j int) bool {
		return order[contents[i].Path] < order[contents[j].Path]
	})
}

// finish updates counters, logs failures and journals the run
func (m *Matcher) finish(ctx context.Context, st *runState, result *types.PipelineResult, err error) {
	m.counters.runs.Add(1)
	m.counters.filesFetched.Add(uint64(st.run.FilesFetched))
	m.counters.filesFailed.Add(uint64(len(st.failures)))

	switch {
	case err == nil && st.run.CacheHit:
		st.run.Status = storage.StatusCacheHit
		m.counters.cacheHits.Add(1)
	case err == nil:
		st.run.Status = storage.StatusSuccess
		m.logger.Info("match completed",
			"issue", st.run.IssueTitle,
			"files_requested", st.run.FilesRequested,
			"files_fetched", st.run.FilesFetched,
			"matches", len(result.Matches),
			"duration_ms", st.run.Duration.Milliseconds(),
		)
	case errors.Is(err, ErrNoContent):
		st.run.Status = storage.StatusNoContent
		m.counters.noContent.Add(1)
		m.logger.Warn("no file content retrieved",
			"issue", st.run.IssueTitle,
			"files_requested", st.run.FilesRequested,
			"failures", len(st.failures),
		)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		st.run.Status = storage.StatusCanceled
		m.counters.canceled.Add(1)
		m.logger.Info("match canceled", "issue", st.run.IssueTitle, "stage", st.stage, "error", err)
	default:
		st.run.Status = storage.StatusError
		m.counters.errors.Add(1)
		m.logger.Error("match pipeline failed",
			"issue", st.run.IssueTitle,
			"repo", st.run.Repo,
			"stage", st.stage,
			"error", err,
		)
	}
	if err != nil {
		st.run.Error = err.Error()
	}

	if m.journal == nil {
		return
	}

	failures := make([]storage.RetrievalFailure, len(st.failures))
	for i, f := range st.failures {
		failures[i] = storage.RetrievalFailure{
			Path:            f.Path,
			ContentLocation: f.ContentLocation,
			Reason:          f.Reason,
			StatusCode:      f.StatusCode,
		}
		if f.Err != nil {
			failures[i].Error = f.Err.Error()
		}
	}

	// The journal outlives a canceled caller
	jctx := context.WithoutCancel(ctx)
	run := st.run
	if err := m.journal.RecordRun(jctx, &run, failures); err != nil {
		m.logger.Warn("failed to journal run", "error", err)
		return
	}

	if m.journalMaxRuns > 0 && m.counters.journaled.Add(1)%trimEvery == 0 {
		if _, err := m.journal.TrimRuns(jctx, m.journalMaxRuns); err != nil {
			m.logger.Warn("failed to trim journal", "error", err)
		}
	}
}

// Stats returns a snapshot of matcher activity
func (m *Matcher) Stats() Stats {
	return Stats{
		Cache:         m.cache.Stats(),
		EmbedWorkers:  m.embedWorkers,
		EmbedProvider: m.embedder.Provider(),
		Runs:          m.counters.runs.Load(),
		CacheHits:     m.counters.cacheHits.Load(),
		NoContent:     m.counters.noContent.Load(),
		Errors:        m.counters.errors.Load(),
		Canceled:      m.counters.canceled.Load(),
		FilesFetched:  m.counters.filesFetched.Load(),
		FilesFailed:   m.counters.filesFailed.Load(),
		EmbedDropped:  m.counters.embedDropped.Load(),
	}
}

// Journal returns the run journal, or nil when journaling is disabled
func (m *Matcher) Journal() storage.RunStore {
	return m.journal
}

func repoName(issue types.IssueQuery) string {
	switch {
	case issue.Owner != "" && issue.Repo != "":
		return issue.Owner + "/" + issue.Repo
	default:
		return issue.Repo
	}
}
