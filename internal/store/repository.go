package store

import (
	"context"
	"time"
)

// Repository is the persistence contract the Store depends on.
// Every method is a single storage round trip and is assumed atomic per row.
type Repository interface {
	// FindByKey returns nil, nil when no row exists for key.
	FindByKey(ctx context.Context, key string) (*Entry, error)

	// Upsert inserts the entry or fully replaces the row with the same key.
	// CreatedAt of an existing row is kept; the persisted row is returned.
	Upsert(ctx context.Context, entry Entry) (Entry, error)

	// DeleteByKey removes the row for key unconditionally.
	DeleteByKey(ctx context.Context, key string) (int64, error)

	// DeleteExpiredByKey removes the row for key only if its expiry is before now.
	DeleteExpiredByKey(ctx context.Context, key string, now time.Time) (int64, error)

	// DeleteAll removes every row.
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteExpired removes every row whose expiry is set and before the given instant.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// Count returns the number of physically present rows, expired or not.
	Count(ctx context.Context) (int64, error)

	Close() error
}
