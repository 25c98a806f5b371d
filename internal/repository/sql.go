package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"json-store/internal/store"
)

// entryRow is the table model for store.Entry.
type entryRow struct {
	bun.BaseModel `bun:"table:json_store_entries"`

	Key       string    `bun:"key,pk"`
	Payload   string    `bun:"payload,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func rowFromEntry(e store.Entry) *entryRow {
	row := &entryRow{
		Key:       e.Key,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
	if !e.ExpiresAt.IsZero() {
		row.ExpiresAt = e.ExpiresAt.UTC()
	}
	return row
}

func (r *entryRow) entry() store.Entry {
	return store.Entry{
		Key:       r.Key,
		Payload:   r.Payload,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

var _ store.Repository = (*SQLRepository)(nil)

// SQLRepository implements store.Repository on a single SQLite table.
type SQLRepository struct {
	db *bun.DB
}

// OpenSQL opens (or creates) the SQLite database at dsn and ensures the schema.
// Use ":memory:" for an in-memory database.
func OpenSQL(ctx context.Context, dsn string) (*SQLRepository, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", dsn)
	}

	// One connection: an in-memory database lives per connection, and
	// SQLite serializes writers anyway.
	sqldb.SetMaxOpenConns(1)

	if _, err := sqldb.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}
	if _, err := sqldb.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	repo := &SQLRepository{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := repo.migrate(ctx); err != nil {
		repo.db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*entryRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "create table")
	}

	_, err = r.db.NewCreateIndex().
		Model((*entryRow)(nil)).
		Index("json_store_entries_expires_at_idx").
		Column("expires_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "create expires_at index")
	}
	return nil
}

// FindByKey returns nil, nil if the row does not exist.
func (r *SQLRepository) FindByKey(ctx context.Context, key string) (*store.Entry, error) {
	row := new(entryRow)
	err := r.db.NewSelect().
		Model(row).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %q", key)
	}

	entry := row.entry()
	return &entry, nil
}

// Upsert inserts or replaces the row. created_at of an existing row is kept.
func (r *SQLRepository) Upsert(ctx context.Context, entry store.Entry) (store.Entry, error) {
	row := rowFromEntry(entry)
	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return store.Entry{}, errors.Wrapf(err, "upsert %q", entry.Key)
	}
	return row.entry(), nil
}

func (r *SQLRepository) DeleteByKey(ctx context.Context, key string) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "delete %q", key)
	}
	return res.RowsAffected()
}

func (r *SQLRepository) DeleteExpiredByKey(ctx context.Context, key string, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("key = ?", key).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "delete expired %q", key)
	}
	return res.RowsAffected()
}

func (r *SQLRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "delete all")
	}
	return res.RowsAffected()
}

// DeleteExpired removes, in one statement, every row whose expiry is before the given instant.
func (r *SQLRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired")
	}
	return res.RowsAffected()
}

func (r *SQLRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.db.NewSelect().Model((*entryRow)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return int64(n), nil
}

// Close shuts down the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
