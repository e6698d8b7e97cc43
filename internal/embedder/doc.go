// Package embedder turns issue and file text into vectors for similarity ranking.
//
// The embedder supports remote providers (Jina AI, OpenAI, or any endpoint
// speaking the same /embeddings format) and an offline local model, and
// provides caching and retry for production use.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vector, err := embedder.Embed(ctx, emb, issue.Text())
//
// File content is normalized with Preprocess before embedding; issue text is
// embedded as is.
//
// # Provider Selection
//
// The embedder selects a provider based on environment variables:
//
//  1. If ISSUEMATCH_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → fallback to local provider (offline mode)
//
// New accepts the same choices explicitly, plus a base URL and model override:
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    key,
//	    BaseURL:   "http://localhost:8080/v1",
//	    CacheSize: 10000,
//	})
//
// # Lazy Initialization
//
// Lazy postpones provider construction until the first embedding request, so
// a server can start without contacting the provider. A failed initialization
// is returned to that caller and retried on the next request.
//
// # Provider Comparison
//
// Jina AI:
//   - Dimensions: 1024
//
// OpenAI:
//   - Dimensions: 1536
//
// Local (offline):
//   - Dimensions: 384
//   - Hashed character trigrams, deterministic, no network
//
// # Caching
//
// Providers consult a Cache keyed by ComputeHash(text). Cached vectors are
// copied in and out, so callers may modify the returned slices.
package embedder
