package embedder

import (
	"context"
	"fmt"
	"sync"
)

// Lazy defers construction of an Embedder until it is first used.
// Concurrent first calls block on a single initialization; a failed
// initialization is reported to the caller and attempted again on the next call.
type Lazy struct {
	mu    sync.Mutex
	init  func() (Embedder, error)
	inner Embedder

	// Descriptive values reported before initialization
	provider  string
	dimension int
}

// NewLazy wraps init; provider and dimension are reported until init succeeds
func NewLazy(provider string, dimension int, init func() (Embedder, error)) *Lazy {
	return &Lazy{
		init:      init,
		provider:  provider,
		dimension: dimension,
	}
}

// LazyFromConfig returns a Lazy embedder built with New(cfg) on first use
func LazyFromConfig(cfg Config) *Lazy {
	provider := cfg.Provider
	if provider == "" {
		provider = DetectProvider()
	}
	return NewLazy(provider, 0, func() (Embedder, error) {
		return New(cfg)
	})
}

// get returns the initialized embedder, initializing it if needed
func (l *Lazy) get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inner != nil {
		return l.inner, nil
	}

	inner, err := l.init()
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	if inner == nil {
		return nil, fmt.Errorf("initialize embedder: %w", ErrNoProviderEnabled)
	}
	l.inner = inner
	return inner, nil
}

// Initialized reports whether the underlying embedder has been constructed
func (l *Lazy) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner != nil
}

func (l *Lazy) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	inner, err := l.get()
	if err != nil {
		return nil, err
	}
	return inner.GenerateEmbedding(ctx, req)
}

func (l *Lazy) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	inner, err := l.get()
	if err != nil {
		return nil, err
	}
	return inner.GenerateBatch(ctx, req)
}

func (l *Lazy) Dimension() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner.Dimension()
	}
	return l.dimension
}

func (l *Lazy) Provider() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner.Provider()
	}
	return l.provider
}

func (l *Lazy) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner.Model()
	}
	return ""
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner == nil {
		return nil
	}
	err := l.inner.Close()
	l.inner = nil
	return err
}
