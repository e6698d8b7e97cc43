// Package cache stores pipeline results under a fingerprint of the request.
//
// The cache is content-addressed: two requests with the same issue title,
// issue description and ordered file paths share a key, whoever sent them.
//
// # Basic Usage
//
//	c := cache.New(cache.DefaultMaxSize, cache.DefaultTTL)
//
//	key := cache.MakeKey(cache.KeyPayload{
//	    IssueTitle:       issue.Title,
//	    IssueDescription: issue.Description,
//	    FilePaths:        paths,
//	})
//
//	if result, ok := c.Get(key); ok {
//	    return result // hit, recency refreshed
//	}
//
//	result := compute()
//	_ = c.Set(key, result)
//
// # Expiry and Eviction
//
// Entries older than the TTL are treated as absent. There is no janitor
// goroutine: an expired entry is deleted the next time its key is looked up,
// or when it reaches the tail of the LRU list and is evicted to make room.
//
// # Concurrency
//
// All operations take one mutex guarding the LRU list, the timestamps and the
// counters. Callers may share one Cache across goroutines.
package cache
