package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/issuematch-mcp/pkg/types"
)

const (
	// DefaultTimeout bounds a single retrieval
	DefaultTimeout = 5 * time.Second
	// DefaultMaxConcurrent caps retrievals in flight across all callers
	DefaultMaxConcurrent = 10
	// DefaultMaxBodyBytes caps how much of a response body is read
	DefaultMaxBodyBytes = 1 << 20
	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "issuematch-mcp"
	// GitHubAPIVersion is sent when a token is configured
	GitHubAPIVersion = "2022-11-28"
)

// Failure reasons
const (
	ReasonMissingLocation = "missing location"
	ReasonHTTPStatus      = "http status"
	ReasonTimeout         = "timeout"
	ReasonTransport       = "transport error"
	ReasonRead            = "read error"
	ReasonCanceled        = "canceled"
)

var (
	// ErrUnexpectedStatus is wrapped by failures caused by a non-200 response
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrPanic is wrapped by failures caused by a recovered panic
	ErrPanic = errors.New("panic during fetch")
)

// Failure records one descriptor that could not be retrieved
type Failure struct {
	Path            string
	ContentLocation string
	Reason          string
	StatusCode      int
	Err             error
}

func (f Failure) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", f.Path, f.Reason, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Config holds fetcher configuration
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int64
	MaxBodyBytes  int64
	Token         string // Optional bearer token for private content
	UserAgent     string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Fetcher retrieves file contents over HTTP with a process-wide concurrency cap.
// One Fetcher should be shared by every pipeline call so the cap is global.
type Fetcher struct {
	client       *http.Client
	sem          *semaphore.Weighted
	timeout      time.Duration
	maxBodyBytes int64
	token        string
	userAgent    string
	logger       *slog.Logger
}

// New creates a Fetcher, filling unset fields with defaults
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Fetcher{
		client:       cfg.HTTPClient,
		sem:          semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		token:        cfg.Token,
		userAgent:    cfg.UserAgent,
		logger:       cfg.Logger.With("component", "fetcher"),
	}
}

// FetchAll retrieves every descriptor concurrently.
// Contents are returned in completion order; failed descriptors are dropped
// from contents and reported in failures instead. FetchAll never aborts the
// batch because of a single failure.
func (f *Fetcher) FetchAll(ctx context.Context, files []types.FileDescriptor) ([]types.FileContent, []Failure) {
	var (
		mu       sync.Mutex
		contents = make([]types.FileContent, 0, len(files))
		failures []Failure
	)

	var g errgroup.Group
	for _, fd := range files {
		if strings.TrimSpace(fd.ContentLocation) == "" {
			f.logger.Warn("skipping file without location", "path", fd.Path)
			mu.Lock()
			failures = append(failures, Failure{
				Path:   fd.Path,
				Reason: ReasonMissingLocation,
				Err:    errors.New("no content location"),
			})
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			content, failure := f.safeFetch(ctx, fd)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failures = append(failures, *failure)
				return nil
			}
			contents = append(contents, content)
			return nil
		})
	}

	// Workers never return errors; failures are collected above
	_ = g.Wait()

	return contents, failures
}

// safeFetch runs fetch and reports a panic as a transport failure
func (f *Fetcher) safeFetch(ctx context.Context, fd types.FileDescriptor) (content types.FileContent, failure *Failure) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("panic while fetching file", "path", fd.Path, "panic", r)
			content = types.FileContent{}
			failure = &Failure{
				Path:            fd.Path,
				ContentLocation: fd.ContentLocation,
				Reason:          ReasonTransport,
				Err:             fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
	}()
	return f.fetch(ctx, fd)
}

// fetch retrieves a single descriptor while holding one semaphore slot
func (f *Fetcher) fetch(ctx context.Context, fd types.FileDescriptor) (types.FileContent, *Failure) {
	location := RawURL(fd.ContentLocation)
	fail := func(reason string, status int, err error) (types.FileContent, *Failure) {
		return types.FileContent{}, &Failure{
			Path:            fd.Path,
			ContentLocation: fd.ContentLocation,
			Reason:          reason,
			StatusCode:      status,
			Err:             err,
		}
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return fail(ReasonCanceled, 0, err)
	}
	defer f.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, location, nil)
	if err != nil {
		f.logger.Error("invalid content location", "path", fd.Path, "url", location, "error", err)
		return fail(ReasonTransport, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
		req.Header.Set("X-GitHub-Api-Version", GitHubAPIVersion)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		reason := classify(ctx, reqCtx, err)
		f.logger.Error("failed to download file", "path", fd.Path, "reason", reason, "error", err)
		return fail(reason, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("failed to download file", "path", fd.Path, "status", resp.StatusCode)
		return fail(ReasonHTTPStatus, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		reason := classify(ctx, reqCtx, err)
		if reason == ReasonTransport {
			reason = ReasonRead
		}
		f.logger.Error("failed to read file body", "path", fd.Path, "reason", reason, "error", err)
		return fail(reason, resp.StatusCode, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		f.logger.Warn("truncating file body", "path", fd.Path, "max_bytes", f.maxBodyBytes)
		body = body[:f.maxBodyBytes]
	}

	return types.FileContent{
		Path:            fd.Path,
		Content:         string(body),
		ContentLocation: fd.ContentLocation,
	}, nil
}

// classify maps a request error to a failure reason
func classify(parent, reqCtx context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return ReasonCanceled
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonTransport
	}
}

// RawURL converts a github.com blob URL into its raw.githubusercontent.com form.
// Any other URL is returned unchanged.
func RawURL(location string) string {
	const prefix = "https://github.com/"
	if !strings.HasPrefix(location, prefix) || !strings.Contains(location, "/blob/") {
		return location
	}
	raw := "https://raw.githubusercontent.com/" + strings.TrimPrefix(location, prefix)
	return strings.Replace(raw, "/blob/", "/", 1)
}
