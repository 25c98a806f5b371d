// Package repository provides the persistence layer behind store.Store.
//
// SQLRepository is the default implementation: a single relational table accessed
// through bun over pure-Go SQLite (modernc.org/sqlite). BoltRepository keeps the
// same rows in a bbolt bucket for hosts that prefer an embedded key-value file.
//
// Both treat expires_at as the only source of truth for expiry; nothing here
// stores an "expired" flag.
package repository
