// Package cache provides TTL key/value storage for computed responses.
// Two backends honor the same contract: an in-process map and an embedded
// Badger database. Backend errors are logged and swallowed so that a cache
// problem degrades to a miss, never a request failure.
package cache

import (
	"context"
	"time"
)

// Store is the cache contract. Values are serialized payloads; a Get after
// the TTL has elapsed reports a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	ClearAll(ctx context.Context)
	// Status describes backend health for the health endpoint.
	Status() string
}
