// Package store defines the record types and backend interfaces shared by
// the durable storage adapters (PostgreSQL, SQLite).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoRows is returned when a lookup matches no record.
var ErrNoRows = errors.New("store: no rows")

// ErrDuplicate is returned by InsertKey when a key record already exists
// for the user.
var ErrDuplicate = errors.New("store: duplicate record")

// KeyRecord is a persisted per-user key. Only the ciphertext (the user key
// encrypted under the master secret) ever reaches a backend.
type KeyRecord struct {
	UserID     string
	Ciphertext []byte
	CreatedAt  time.Time
	RotatedAt  time.Time // zero until the key has been rotated
}

// VectorRecord is a persisted obfuscated vector. Rows are append-only: a
// new store for the same (user, session) inserts a new row rather than
// updating an old one, and reads return the row with the highest ID.
type VectorRecord struct {
	ID        int64
	UserID    string
	SessionID string
	Platform  string
	Timestamp time.Time
	Payload   []byte // codec-encoded obfuscated vector
}

// KeyBackend persists encrypted per-user keys.
type KeyBackend interface {
	// InsertKey stores a new key record; ErrDuplicate if one exists.
	InsertKey(ctx context.Context, rec KeyRecord) error
	// GetKey loads the key record for userID; ErrNoRows if absent.
	GetKey(ctx context.Context, userID string) (KeyRecord, error)
	// ReplaceKey upserts the key record, overwriting any previous one.
	ReplaceKey(ctx context.Context, rec KeyRecord) error
}

// VectorBackend persists obfuscated vectors.
type VectorBackend interface {
	// InsertVector appends a record and returns its assigned ID.
	InsertVector(ctx context.Context, rec VectorRecord) (int64, error)
	// LatestVector returns the most recent record for (userID, sessionID);
	// ErrNoRows if none exists.
	LatestVector(ctx context.Context, userID, sessionID string) (VectorRecord, error)
}

// Backend is the full durable storage surface.
type Backend interface {
	KeyBackend
	VectorBackend
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying pool or handle.
	Close() error
}
