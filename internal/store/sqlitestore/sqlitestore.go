// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// sqlitestore.go — embedded durable storage backend using the pure-Go
// modernc.org/sqlite driver. Suits single-node deployments and serves as the
// real backend for the unit test suite.

// Package sqlitestore provides the SQLite durable storage adapter.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/AndrewDonelson/embedcore/internal/store"
)

// Store is the SQLite storage adapter.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at dsn and runs the
// schema migration. Use ":memory:" plus cache=shared for tests, e.g.
// "file:embedcore?mode=memory&cache=shared".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore open: %w", err)
	}
	// The driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS user_keys (
			user_id    TEXT PRIMARY KEY,
			ciphertext BLOB NOT NULL,
			created_at TEXT NOT NULL,
			rotated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			ts         TEXT NOT NULL,
			platform   TEXT NOT NULL,
			payload    BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_user_session
			ON embeddings (user_id, session_id, id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore migrate: %w", err)
		}
	}
	return nil
}

// InsertKey stores a new key record; store.ErrDuplicate if one exists.
func (s *Store) InsertKey(ctx context.Context, rec store.KeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_keys (user_id, ciphertext, created_at, rotated_at) VALUES (?, ?, ?, NULL)`,
		rec.UserID, rec.Ciphertext, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("sqlitestore insert key: %w", err)
	}
	return nil
}

// GetKey loads the key record for userID; store.ErrNoRows if absent.
func (s *Store) GetKey(ctx context.Context, userID string) (store.KeyRecord, error) {
	var (
		rec       store.KeyRecord
		createdAt string
		rotatedAt sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, ciphertext, created_at, rotated_at FROM user_keys WHERE user_id = ?`, userID)
	if err := row.Scan(&rec.UserID, &rec.Ciphertext, &createdAt, &rotatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.KeyRecord{}, store.ErrNoRows
		}
		return store.KeyRecord{}, fmt.Errorf("sqlitestore get key: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if rotatedAt.Valid {
		rec.RotatedAt, _ = time.Parse(time.RFC3339Nano, rotatedAt.String)
	}
	return rec, nil
}

// ReplaceKey upserts the key record.
func (s *Store) ReplaceKey(ctx context.Context, rec store.KeyRecord) error {
	var rotatedAt any
	if !rec.RotatedAt.IsZero() {
		rotatedAt = rec.RotatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_keys (user_id, ciphertext, created_at, rotated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET ciphertext = excluded.ciphertext, rotated_at = excluded.rotated_at`,
		rec.UserID, rec.Ciphertext, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rotatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore replace key: %w", err)
	}
	return nil
}

// InsertVector appends a record and returns the assigned rowid.
func (s *Store) InsertVector(ctx context.Context, rec store.VectorRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (user_id, session_id, ts, platform, payload) VALUES (?, ?, ?, ?, ?)`,
		rec.UserID, rec.SessionID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Platform, rec.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore insert vector: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore insert vector id: %w", err)
	}
	return id, nil
}

// LatestVector returns the most recent record for (userID, sessionID).
func (s *Store) LatestVector(ctx context.Context, userID, sessionID string) (store.VectorRecord, error) {
	var (
		rec store.VectorRecord
		ts  string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, ts, platform, payload
		 FROM embeddings WHERE user_id = ? AND session_id = ?
		 ORDER BY id DESC LIMIT 1`, userID, sessionID)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &ts, &rec.Platform, &rec.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.VectorRecord{}, store.ErrNoRows
		}
		return store.VectorRecord{}, fmt.Errorf("sqlitestore latest vector: %w", err)
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return rec, nil
}

// Ping verifies the database handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures via the message; the
	// caller always guards with 'if err != nil' first.
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
