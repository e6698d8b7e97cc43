// Package matcher implements the issue-to-file match pipeline.
//
// A call moves through these stages:
//
//	cache_check -> hit: return the cached result
//	            -> miss: fetch -> embed -> rank -> summarize -> store
//
// The issue text is embedded while files are fetched. File contents are
// preprocessed and embedded on a pool shared by all calls of a Matcher,
// ranked by cosine similarity, optionally summarized, and cached under a
// fingerprint of the issue title, description and file paths.
//
// Files that cannot be fetched or embedded are dropped; the call fails with
// ErrNoContent only when nothing could be fetched. Any other failure is a
// *PipelineError naming the stage. Failed calls are never cached.
//
// Basic usage:
//
//	m, err := matcher.New(matcher.Config{
//	    Cache:    cache.New(cache.DefaultMaxSize, cache.DefaultTTL),
//	    Fetcher:  fetcher.New(fetcher.Config{}),
//	    Embedder: embedder.LazyFromConfig(embedder.Config{}),
//	})
//	result, err := m.Match(ctx, issue, files)
package matcher
