package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"json-store/internal/store"
)

var _ store.Repository = (*BoltRepository)(nil)

// BoltRepository implements store.Repository on a single bbolt bucket.
// Each bolt transaction is serialized against writers, so the sweep runs as
// one atomic Update.
type BoltRepository struct {
	db     *bolt.DB
	bucket []byte
}

// BoltOptions configures OpenBolt. Zero values select the json_store_entries
// bucket and a one second lock timeout.
type BoltOptions struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// boltRecord is the stored layout of a row; the key is the bolt key.
type boltRecord struct {
	Payload   string     `json:"payload"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (rec boltRecord) entry(key string) store.Entry {
	e := store.Entry{
		Key:       key,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.ExpiresAt != nil {
		e.ExpiresAt = *rec.ExpiresAt
	}
	return e
}

func (rec boltRecord) expiredBefore(t time.Time) bool {
	return rec.ExpiresAt != nil && rec.ExpiresAt.Before(t)
}

// OpenBolt initializes or opens a bolt file at path.
func OpenBolt(path string, opts BoltOptions) (*BoltRepository, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt %q", path)
	}

	bucket := []byte("json_store_entries")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &BoltRepository{db: db, bucket: bucket}, nil
}

func decodeRecord(v []byte) (boltRecord, error) {
	var rec boltRecord
	err := json.Unmarshal(v, &rec)
	return rec, err
}

// FindByKey returns nil, nil if the key does not exist.
func (r *BoltRepository) FindByKey(ctx context.Context, key string) (*store.Entry, error) {
	var out *store.Entry
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(r.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		e := rec.entry(key)
		out = &e
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find %q", key)
	}
	return out, nil
}

// Upsert replaces the stored record, keeping created_at of an existing one.
func (r *BoltRepository) Upsert(ctx context.Context, entry store.Entry) (store.Entry, error) {
	rec := boltRecord{
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt.UTC(),
		UpdatedAt: entry.UpdatedAt.UTC(),
	}
	if !entry.ExpiresAt.IsZero() {
		exp := entry.ExpiresAt.UTC()
		rec.ExpiresAt = &exp
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if old := b.Get([]byte(entry.Key)); old != nil {
			if prev, err := decodeRecord(old); err == nil {
				rec.CreatedAt = prev.CreatedAt
			}
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.Key), data)
	})
	if err != nil {
		return store.Entry{}, errors.Wrapf(err, "upsert %q", entry.Key)
	}
	return rec.entry(entry.Key), nil
}

func (r *BoltRepository) DeleteByKey(ctx context.Context, key string) (int64, error) {
	return r.deleteKey(key, func(boltRecord) bool { return true })
}

func (r *BoltRepository) DeleteExpiredByKey(ctx context.Context, key string, now time.Time) (int64, error) {
	return r.deleteKey(key, func(rec boltRecord) bool { return rec.expiredBefore(now) })
}

func (r *BoltRepository) deleteKey(key string, match func(boltRecord) bool) (int64, error) {
	var removed int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if !match(rec) {
			return nil
		}
		removed = 1
		return b.Delete([]byte(key))
	})
	if err != nil {
		return 0, errors.Wrapf(err, "delete %q", key)
	}
	return removed, nil
}

func (r *BoltRepository) DeleteAll(ctx context.Context) (int64, error) {
	var removed int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		removed = countKeys(tx.Bucket(r.bucket))
		if err := tx.DeleteBucket(r.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(r.bucket)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete all")
	}
	return removed, nil
}

// DeleteExpired scans the bucket and removes expired records in one transaction.
func (r *BoltRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)

		// Collect first; deleting under a live cursor skips the next key.
		var expired [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, err := decodeRecord(v)
			if err != nil {
				return errors.Wrapf(err, "decode %q", k)
			}
			if rec.expiredBefore(before) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = int64(len(expired))
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete expired")
	}
	return removed, nil
}

func (r *BoltRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.View(func(tx *bolt.Tx) error {
		n = countKeys(tx.Bucket(r.bucket))
		return nil
	})
	return n, err
}

func countKeys(b *bolt.Bucket) int64 {
	var n int64
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// Close closes the underlying database.
func (r *BoltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
