package matcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/issuematch-mcp/internal/cache"
	"github.com/dshills/issuematch-mcp/internal/embedder"
	"github.com/dshills/issuematch-mcp/internal/fetcher"
	"github.com/dshills/issuematch-mcp/internal/storage"
	"github.com/dshills/issuematch-mcp/internal/summarizer"
	"github.com/dshills/issuematch-mcp/pkg/types"
)

// contentServer serves files by URL path and counts requests
type contentServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newContentServer(t *testing.T, files map[string]string) *contentServer {
	t.Helper()
	cs := &contentServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.requests.Add(1)
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *contentServer) descriptor(path string) types.FileDescriptor {
	return types.FileDescriptor{Name: path, Path: path, ContentLocation: cs.URL + "/" + path}
}

// stubEmbedder embeds text with fn
type stubEmbedder struct {
	fn func(text string) ([]float32, error)
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	v, err := s.fn(req.Text)
	if err != nil {
		return nil, err
	}
	return &embedder.Embedding{Vector: v, Dimension: len(v), Provider: "stub"}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{Provider: "stub"}
	for _, text := range req.Texts {
		emb, err := s.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (s *stubEmbedder) Dimension() int   { return 2 }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub-model" }
func (s *stubEmbedder) Close() error     { return nil }

// stubFetcher returns contents from a map without network access
type stubFetcher struct {
	contents map[string]string
	calls    atomic.Int32
	panics   bool
}

func (f *stubFetcher) FetchAll(ctx context.Context, files []types.FileDescriptor) ([]types.FileContent, []fetcher.Failure) {
	f.calls.Add(1)
	if f.panics {
		panic("fetcher exploded")
	}
	var contents []types.FileContent
	var failures []fetcher.Failure
	for _, fd := range files {
		body, ok := f.contents[fd.Path]
		if !ok {
			failures = append(failures, fetcher.Failure{Path: fd.Path, Reason: fetcher.ReasonHTTPStatus, StatusCode: 404})
			continue
		}
		contents = append(contents, types.FileContent{Path: fd.Path, Content: body, ContentLocation: fd.ContentLocation})
	}
	return contents, failures
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("transport boom")
}

func localEmbedder(t *testing.T) embedder.Embedder {
	t.Helper()
	e, err := embedder.NewLocalProvider(embedder.NewCache(100))
	require.NoError(t, err)
	return e
}

func newTestMatcher(t *testing.T, cfg Config) *Matcher {
	t.Helper()
	if cfg.Cache == nil {
		cfg.Cache = cache.New(100, time.Hour)
	}
	if cfg.Embedder == nil {
		cfg.Embedder = localEmbedder(t)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

var crashIssue = types.IssueQuery{
	Owner:       "acme",
	Repo:        "widgets",
	Title:       "Fix crash on null input",
	Description: "NPE in parser",
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Fetcher: &stubFetcher{}, Embedder: &stubEmbedder{}})
	assert.Error(t, err)
	_, err = New(Config{Cache: cache.New(1, time.Minute), Embedder: &stubEmbedder{}})
	assert.Error(t, err)
	_, err = New(Config{Cache: cache.New(1, time.Minute), Fetcher: &stubFetcher{}})
	assert.Error(t, err)
}

func TestMatch_ParserRanksAboveReadme(t *testing.T) {
	srv := newContentServer(t, map[string]string{
		"parser.py": "def parse(x): return x.value",
		"README.md": "project docs",
	})
	m := newTestMatcher(t, Config{Fetcher: fetcher.New(fetcher.Config{})})

	result, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{
		srv.descriptor("README.md"),
		srv.descriptor("parser.py"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	assert.Equal(t, "parser.py", result.Matches[0].FileName)
	assert.Equal(t, 0.19, result.Matches[0].MatchScore)
	assert.Equal(t, srv.URL+"/parser.py", result.Matches[0].ContentLocation)
	for _, match := range result.Matches {
		assert.NotEqual(t, "README.md", match.FileName, "README similarity is below the threshold")
	}
	assert.Empty(t, result.Overview, "no summarizer configured")
	assert.NoError(t, result.Validate())
}

func TestMatch_CacheHitIsIdempotent(t *testing.T) {
	srv := newContentServer(t, map[string]string{
		"parser.py": "def parse(x): return x.value",
		"README.md": "project docs",
	})
	m := newTestMatcher(t, Config{Fetcher: fetcher.New(fetcher.Config{})})
	files := []types.FileDescriptor{srv.descriptor("parser.py"), srv.descriptor("README.md")}

	first, err := m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.requests.Load())

	second, err := m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.requests.Load(), "cache hit must not fetch")
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Matches, second.Matches)
	assert.Equal(t, first.Overview, second.Overview)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Runs)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, 1, stats.Cache.Size)
	assert.Equal(t, "local", stats.EmbedProvider)

	// Reordering files changes the fingerprint
	_, err = m.Match(context.Background(), crashIssue, []types.FileDescriptor{files[1], files[0]})
	require.NoError(t, err)
	assert.Equal(t, int32(4), srv.requests.Load())
}

func TestMatch_TTLExpiryRefetches(t *testing.T) {
	srv := newContentServer(t, map[string]string{"parser.py": "def parse(x): return x.value"})

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := cache.New(10, 30*time.Minute, cache.WithClock(clock))
	m := newTestMatcher(t, Config{Cache: c, Fetcher: fetcher.New(fetcher.Config{})})
	files := []types.FileDescriptor{srv.descriptor("parser.py")}

	_, err := m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	_, err = m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.requests.Load())

	mu.Lock()
	now = now.Add(30*time.Minute + time.Second)
	mu.Unlock()

	_, err = m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.requests.Load(), "expired entry must be recomputed")
}

func TestMatch_NoContent(t *testing.T) {
	t.Run("all files missing", func(t *testing.T) {
		srv := newContentServer(t, nil)
		m := newTestMatcher(t, Config{Fetcher: fetcher.New(fetcher.Config{})})
		files := []types.FileDescriptor{srv.descriptor("a.py"), srv.descriptor("b.py")}

		result, err := m.Match(context.Background(), crashIssue, files)
		assert.ErrorIs(t, err, ErrNoContent)
		assert.False(t, errors.Is(err, ErrPipeline))
		assert.Nil(t, result)
		assert.Equal(t, 0, m.Stats().Cache.Size, "no-content results are not cached")

		_, err = m.Match(context.Background(), crashIssue, files)
		assert.ErrorIs(t, err, ErrNoContent)
		assert.Equal(t, int32(4), srv.requests.Load(), "second call fetches again")
		assert.Equal(t, uint64(2), m.Stats().NoContent)
		assert.Equal(t, uint64(4), m.Stats().FilesFailed)
	})

	t.Run("empty file list", func(t *testing.T) {
		f := &stubFetcher{}
		m := newTestMatcher(t, Config{Fetcher: f})

		_, err := m.Match(context.Background(), crashIssue, nil)
		assert.ErrorIs(t, err, ErrNoContent)
		assert.Equal(t, int32(0), f.calls.Load())
	})
}

func TestMatch_PartialFailureTolerated(t *testing.T) {
	srv := newContentServer(t, map[string]string{"parser.py": "def parse(x): return x.value"})
	journal, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	m := newTestMatcher(t, Config{Fetcher: fetcher.New(fetcher.Config{}), Journal: journal})

	result, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{
		srv.descriptor("gone.py"),
		srv.descriptor("parser.py"),
	})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "parser.py", result.Matches[0].FileName)

	runs, err := journal.ListRecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusSuccess, runs[0].Status)
	assert.Equal(t, "acme/widgets", runs[0].Repo)
	assert.Equal(t, 2, runs[0].FilesRequested)
	assert.Equal(t, 1, runs[0].FilesFetched)
	assert.Equal(t, 1, runs[0].MatchCount)
	assert.NotEmpty(t, runs[0].CacheKey)

	failures, err := journal.ListFailures(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "gone.py", failures[0].Path)
	assert.Equal(t, 404, failures[0].StatusCode)
	assert.Equal(t, fetcher.ReasonHTTPStatus, failures[0].Reason)
}

func TestMatch_JournalStatuses(t *testing.T) {
	journal, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	f := &stubFetcher{contents: map[string]string{"parser.py": "def parse(x): return x.value"}}
	m := newTestMatcher(t, Config{Fetcher: f, Journal: journal})
	ctx := context.Background()

	_, err = m.Match(ctx, crashIssue, []types.FileDescriptor{{Path: "parser.py"}})
	require.NoError(t, err)
	_, err = m.Match(ctx, crashIssue, []types.FileDescriptor{{Path: "parser.py"}})
	require.NoError(t, err)
	_, err = m.Match(ctx, crashIssue, []types.FileDescriptor{{Path: "missing.py"}})
	require.ErrorIs(t, err, ErrNoContent)

	status, err := journal.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalRuns)
	assert.Equal(t, 1, status.RunsByStatus[string(storage.StatusSuccess)])
	assert.Equal(t, 1, status.RunsByStatus[string(storage.StatusCacheHit)])
	assert.Equal(t, 1, status.RunsByStatus[string(storage.StatusNoContent)])
	assert.Equal(t, 1, status.TotalFailures)
}

func TestMatch_Overview(t *testing.T) {
	f := &stubFetcher{contents: map[string]string{"parser.py": "def parse(x): return x.value"}}
	files := []types.FileDescriptor{{Path: "parser.py"}}

	t.Run("summary attached", func(t *testing.T) {
		var prompt string
		s := summarizer.Func(func(ctx context.Context, p string) (string, error) {
			prompt = p
			return "  The parser dereferences a nil value.  ", nil
		})
		m := newTestMatcher(t, Config{Fetcher: f, Overviewer: summarizer.NewOverviewer(s)})

		result, err := m.Match(context.Background(), crashIssue, files)
		require.NoError(t, err)
		assert.Equal(t, "The parser dereferences a nil value.", result.Overview)
		assert.Contains(t, prompt, "### parser.py")
		assert.Contains(t, prompt, crashIssue.Title)

		// The overview is cached with the matches
		cached, err := m.Match(context.Background(), crashIssue, files)
		require.NoError(t, err)
		assert.Equal(t, result.Overview, cached.Overview)
	})

	t.Run("failure degrades to placeholder", func(t *testing.T) {
		s := summarizer.Func(func(ctx context.Context, p string) (string, error) {
			return "", errors.New("quota exceeded")
		})
		m := newTestMatcher(t, Config{Fetcher: f, Overviewer: summarizer.NewOverviewer(s)})

		result, err := m.Match(context.Background(), crashIssue, files)
		require.NoError(t, err)
		assert.Equal(t, summarizer.Placeholder, result.Overview)
		assert.NotEmpty(t, result.Matches)
	})
}

func TestMatch_EmbeddingFailureDropsFile(t *testing.T) {
	local := localEmbedder(t)
	e := &stubEmbedder{fn: func(text string) ([]float32, error) {
		if strings.Contains(text, "broken") {
			return nil, embedder.ErrProviderFailed
		}
		return embedder.Embed(context.Background(), local, text)
	}}
	f := &stubFetcher{contents: map[string]string{
		"parser.py": "def parse(x): return x.value",
		"broken.py": "broken parser null input crash",
	}}
	m := newTestMatcher(t, Config{Fetcher: f, Embedder: e})

	result, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{{Path: "broken.py"}, {Path: "parser.py"}})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "parser.py", result.Matches[0].FileName)
	assert.Equal(t, uint64(1), m.Stats().EmbedDropped)
}

func TestMatch_IssueEmbeddingFailure(t *testing.T) {
	e := &stubEmbedder{fn: func(text string) ([]float32, error) {
		return nil, embedder.ErrProviderFailed
	}}
	f := &stubFetcher{contents: map[string]string{"parser.py": "def parse(x): return x.value"}}
	m := newTestMatcher(t, Config{Fetcher: f, Embedder: e})

	_, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{{Path: "parser.py"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPipeline)
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageEmbed, pe.Stage)
	assert.Equal(t, 0, m.Stats().Cache.Size)
	assert.Equal(t, uint64(1), m.Stats().Errors)
}

func TestMatch_EmptyContentScoresZero(t *testing.T) {
	f := &stubFetcher{contents: map[string]string{"empty.py": "", "parser.py": "def parse(x): return x.value"}}
	m := newTestMatcher(t, Config{Fetcher: f})

	result, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{{Path: "empty.py"}, {Path: "parser.py"}})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "parser.py", result.Matches[0].FileName)
}

func TestMatch_PanicRecovered(t *testing.T) {
	t.Run("fetcher panic", func(t *testing.T) {
		m := newTestMatcher(t, Config{Fetcher: &stubFetcher{panics: true}})

		result, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{{Path: "a.py"}})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrPipeline)

		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StageFetch, pe.Stage)
		assert.Contains(t, err.Error(), "fetcher exploded")
		assert.Equal(t, 0, m.Stats().Cache.Size)
	})

	t.Run("transport panic", func(t *testing.T) {
		srv := newContentServer(t, map[string]string{"parser.py": "def parse(x): return x.value"})
		f := fetcher.New(fetcher.Config{HTTPClient: &http.Client{Transport: panicTransport{}}})
		m := newTestMatcher(t, Config{Fetcher: f})

		_, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{srv.descriptor("parser.py")})
		assert.ErrorIs(t, err, ErrNoContent)
		assert.Equal(t, uint64(1), m.Stats().FilesFailed)
		assert.Equal(t, int32(0), srv.requests.Load())
	})

	t.Run("embedder panic", func(t *testing.T) {
		e := &stubEmbedder{fn: func(text string) ([]float32, error) {
			if strings.Contains(text, "parse") {
				panic("embedder exploded")
			}
			return []float32{1, 0}, nil
		}}
		f := &stubFetcher{contents: map[string]string{"parser.py": "def parse(x): return x.value"}}
		m := newTestMatcher(t, Config{Fetcher: f, Embedder: e})

		_, err := m.Match(context.Background(), crashIssue, []types.FileDescriptor{{Path: "parser.py"}})
		assert.ErrorIs(t, err, ErrPipeline)

		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StageEmbed, pe.Stage)
		assert.Equal(t, 0, m.Stats().Cache.Size)
	})
}

func TestMatch_Canceled(t *testing.T) {
	srv := newContentServer(t, map[string]string{"parser.py": "def parse(x): return x.value"})
	m := newTestMatcher(t, Config{Fetcher: fetcher.New(fetcher.Config{})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Match(ctx, crashIssue, []types.FileDescriptor{srv.descriptor("parser.py")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrPipeline)
	assert.Equal(t, uint64(1), m.Stats().Canceled)
	assert.Equal(t, 0, m.Stats().Cache.Size)
}

func TestMatch_EmbeddingPoolBound(t *testing.T) {
	var active, peak atomic.Int32
	e := &stubEmbedder{fn: func(text string) ([]float32, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return []float32{1, 1}, nil
	}}

	contents := make(map[string]string)
	var files []types.FileDescriptor
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("file%d.go", i)
		contents[path] = "func handler() error"
		files = append(files, types.FileDescriptor{Path: path})
	}
	m := newTestMatcher(t, Config{Fetcher: &stubFetcher{contents: contents}, Embedder: e, EmbedWorkers: 2})

	result, err := m.Match(context.Background(), crashIssue, files)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(2), m.Stats().EmbedWorkers)

	// Identical vectors tie; ties keep request order and K caps the result
	require.Len(t, result.Matches, 3)
	assert.Equal(t, "file0.go", result.Matches[0].FileName)
	assert.Equal(t, "file1.go", result.Matches[1].FileName)
	assert.Equal(t, "file2.go", result.Matches[2].FileName)
}

func TestMatch_EmbeddingPoolSharedAcrossCalls(t *testing.T) {
	var active, peak atomic.Int32
	e := &stubEmbedder{fn: func(text string) ([]float32, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return []float32{1, 1}, nil
	}}

	contents := make(map[string]string)
	var files []types.FileDescriptor
	for i := 0; i < 6; i++ {
		path := fmt.Sprintf("file%d.go", i)
		contents[path] = "func handler() error"
		files = append(files, types.FileDescriptor{Path: path})
	}
	m := newTestMatcher(t, Config{Fetcher: &stubFetcher{contents: contents}, Embedder: e, EmbedWorkers: 2})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issue := crashIssue
			issue.Title = fmt.Sprintf("issue %d", i)
			_, err := m.Match(context.Background(), issue, files)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
	assert.Equal(t, uint64(4), m.Stats().Runs)
	assert.Equal(t, 4, m.Stats().Cache.Size)
}

func TestMatch_BlankIssueMatchesNothing(t *testing.T) {
	f := &stubFetcher{contents: map[string]string{"parser.py": "def parse(x): return x.value"}}
	m := newTestMatcher(t, Config{Fetcher: f})

	result, err := m.Match(context.Background(), types.IssueQuery{}, []types.FileDescriptor{{Path: "parser.py"}})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestPipelineError(t *testing.T) {
	cause := errors.New("boom")
	err := &PipelineError{Stage: StageRank, Err: cause}

	assert.ErrorIs(t, err, ErrPipeline)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "match pipeline failed at rank: boom", err.Error())
}

func TestRepoName(t *testing.T) {
	assert.Equal(t, "acme/widgets", repoName(types.IssueQuery{Owner: "acme", Repo: "widgets"}))
	assert.Equal(t, "widgets", repoName(types.IssueQuery{Repo: "widgets"}))
	assert.Equal(t, "", repoName(types.IssueQuery{Owner: "acme"}))
}
