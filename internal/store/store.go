package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound    = errors.New("idempotency entry not found")
	ErrKeyConflict = errors.New("idempotency key reused with a different request body")
)

// Entry is one cached forwarding outcome, keyed by the payment request id
// that the client supplied as its idempotency token.
type Entry struct {
	Key          string
	BodyHash     string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
}

// ReplayStore caches the forwarding server's successful upstream outcomes
// so transport-level retries of the same payment request replay the
// original response instead of hitting the payment API again. Entries
// expire after a TTL; expired entries behave as absent.
type ReplayStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error

	// PurgeExpired drops entries older than the TTL and reports how many
	// were removed.
	PurgeExpired(ctx context.Context) (int, error)

	Close()
}
