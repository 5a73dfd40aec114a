// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// pgstore.go — PostgreSQL durable storage backend over a pgx connection
// pool: schema migration, key record upserts, and append-only vector rows
// read back newest-first.

// Package pgstore provides the PostgreSQL durable storage adapter.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AndrewDonelson/embedcore/internal/store"
)

// Store is the PostgreSQL storage adapter.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store from an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect parses dsn, opens a pool, and runs the schema migration.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore pool: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the key and embedding tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS user_keys (
			user_id    TEXT PRIMARY KEY,
			ciphertext BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			rotated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			platform   TEXT NOT NULL,
			payload    BYTEA NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_user_session
			ON embeddings (user_id, session_id, id DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore migrate: %w", err)
		}
	}
	return nil
}

// InsertKey stores a new key record; store.ErrDuplicate if one exists.
func (s *Store) InsertKey(ctx context.Context, rec store.KeyRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_keys (user_id, ciphertext, created_at, rotated_at) VALUES ($1, $2, $3, NULL)`,
		rec.UserID, rec.Ciphertext, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return store.ErrDuplicate
		}
		return fmt.Errorf("pgstore insert key: %w", err)
	}
	return nil
}

// GetKey loads the key record for userID; store.ErrNoRows if absent.
func (s *Store) GetKey(ctx context.Context, userID string) (store.KeyRecord, error) {
	var (
		rec       store.KeyRecord
		rotatedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, ciphertext, created_at, rotated_at
		 FROM user_keys WHERE user_id = $1`, userID).
		Scan(&rec.UserID, &rec.Ciphertext, &rec.CreatedAt, &rotatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.KeyRecord{}, store.ErrNoRows
		}
		return store.KeyRecord{}, fmt.Errorf("pgstore get key: %w", err)
	}
	if rotatedAt != nil {
		rec.RotatedAt = *rotatedAt
	}
	return rec, nil
}

// ReplaceKey upserts the key record.
func (s *Store) ReplaceKey(ctx context.Context, rec store.KeyRecord) error {
	var rotatedAt any
	if !rec.RotatedAt.IsZero() {
		rotatedAt = rec.RotatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_keys (user_id, ciphertext, created_at, rotated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, rotated_at = EXCLUDED.rotated_at`,
		rec.UserID, rec.Ciphertext, rec.CreatedAt, rotatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgstore replace key: %w", err)
	}
	return nil
}

// InsertVector appends a record and returns the assigned id.
func (s *Store) InsertVector(ctx context.Context, rec store.VectorRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO embeddings (user_id, session_id, ts, platform, payload)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rec.UserID, rec.SessionID, rec.Timestamp, rec.Platform, rec.Payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pgstore insert vector: %w", err)
	}
	return id, nil
}

// LatestVector returns the most recent record for (userID, sessionID).
func (s *Store) LatestVector(ctx context.Context, userID, sessionID string) (store.VectorRecord, error) {
	var rec store.VectorRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, session_id, ts, platform, payload
		 FROM embeddings WHERE user_id = $1 AND session_id = $2
		 ORDER BY id DESC LIMIT 1`, userID, sessionID).
		Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Timestamp, &rec.Platform, &rec.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.VectorRecord{}, store.ErrNoRows
		}
		return store.VectorRecord{}, fmt.Errorf("pgstore latest vector: %w", err)
	}
	return rec, nil
}

// Ping verifies the pool is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
