package store

import (
	"context"
	"time"

	"json-store/internal/logs"
	"json-store/internal/metrics"
)

// SetOptions controls a single Set call.
type SetOptions struct {
	// TTL is the lifetime of the entry. Zero means the entry never expires.
	TTL time.Duration
}

// Store is a key-value API over a Repository with lazy expiration.
//
// Design principles:
// - No in-process locking; consistency relies on per-row atomicity of the Repository
// - Expiry is recomputed against the clock on every read
// - Expired rows found by Get are deleted as a side effect of that read
type Store struct {
	repo    Repository
	metrics *metrics.Registry
	logger  *logs.Logger
	now     func() time.Time
}

// NewStore initializes and returns a new Store.
func NewStore(
	repo Repository,
	metricsRegistry *metrics.Registry,
	logger *logs.Logger,
) *Store {
	return &Store{
		repo:    repo,
		metrics: metricsRegistry,
		logger:  logger,
		now:     time.Now,
	}
}

// clock returns the current time at the microsecond precision the
// repositories persist, so Get and the conditional delete agree on expiry.
func (s *Store) clock() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// Set serializes value and upserts the row for key, replacing any existing row.
//
// Rules:
// - Serialization failures return ErrSerialization and perform no write.
// - TTL > 0 sets ExpiresAt to now+TTL; TTL == 0 stores an entry that never expires.
func (s *Store) Set(ctx context.Context, key string, value any, opts SetOptions) (Entry, error) {
	s.metrics.Inc(metrics.StoreSetsTotal)

	if key == "" {
		return Entry{}, ErrEmptyKey
	}
	if opts.TTL < 0 {
		return Entry{}, ErrInvalidTTL
	}

	payload, err := encodePayload(value)
	if err != nil {
		s.metrics.Inc(metrics.SerializationErrorsTotal)
		s.logger.Warn("set rejected: value is not serializable", "key", key, "error", err)
		return Entry{}, err
	}

	now := s.clock().UTC()
	entry := Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.TTL > 0 {
		entry.ExpiresAt = now.Add(opts.TTL)
	}

	stored, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return Entry{}, wrapStorage("set "+key, err)
	}
	return stored, nil
}

// Get returns the decoded value for key.
//
// Behavior:
// - Returns (value, true, nil) if the key exists and is not expired
// - Returns (nil, false, nil) if the key does not exist
// - If the key is expired, the row is deleted and (nil, false, err) is returned,
//   where err is non-nil only when that delete failed (matches ErrExpiredCleanup)
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	s.metrics.Inc(metrics.StoreGetsTotal)

	entry, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return nil, false, wrapStorage("get "+key, err)
	}
	if entry == nil {
		s.metrics.Inc(metrics.StoreMissesTotal)
		return nil, false, nil
	}

	now := s.clock()
	if entry.IsExpired(now) {
		s.metrics.Inc(metrics.StoreMissesTotal)
		if err := s.removeExpired(ctx, key, now); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	s.metrics.Inc(metrics.StoreHitsTotal)
	return decodePayload(entry.Payload), true, nil
}

// removeExpired deletes key only while it is still expired, so a fresh Set
// racing with this read is never removed.
func (s *Store) removeExpired(ctx context.Context, key string, now time.Time) error {
	removed, err := s.repo.DeleteExpiredByKey(ctx, key, now)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		s.logger.Warn("expired entry cleanup failed", "key", key, "error", err)
		return wrapCleanup("get "+key, err)
	}
	s.metrics.Add(metrics.StoreExpiredTotal, removed)
	return nil
}

// Delete removes the row for key regardless of its expiry.
// It returns false without issuing a delete when the key does not exist.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	entry, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return false, wrapStorage("delete "+key, err)
	}
	if entry == nil {
		return false, nil
	}

	removed, err := s.repo.DeleteByKey(ctx, key)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return false, wrapStorage("delete "+key, err)
	}

	s.metrics.Inc(metrics.StoreDeletesTotal)
	return removed > 0, nil
}

// Count returns the number of physically present rows, including expired
// rows not yet removed.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return 0, wrapStorage("count", err)
	}
	return n, nil
}

// Clear removes every row and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteAll(ctx)
	if err != nil {
		s.metrics.Inc(metrics.StorageErrorsTotal)
		return 0, wrapStorage("clear", err)
	}

	s.metrics.Inc(metrics.StoreClearsTotal)
	s.logger.Info("store cleared", "removed", removed)
	return removed, nil
}
