package store

import "time"

// Entry is a single persisted key-value row.
//
// Design choices:
// - Payload holds the JSON-encoded value as text.
// - Zero value of ExpiresAt means "no expiration".
// - Expiry is never stored as a flag; it is derived from ExpiresAt on every read.
type Entry struct {
	Key       string    `json:"key"`
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired checks whether the entry is expired at the given time.
func (e Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return e.ExpiresAt.Before(now)
}

// HasExpiry reports whether the entry was written with a TTL.
func (e Entry) HasExpiry() bool {
	return !e.ExpiresAt.IsZero()
}
