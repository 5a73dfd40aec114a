// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// rediscache.go — Redis-backed read accelerator for obfuscated vectors,
// sitting between the in-process LRU cache and durable storage. Values are
// codec-encoded; the ErrMiss sentinel drives clean tier fallthrough.

// Package rediscache provides the Redis cache tier adapter.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AndrewDonelson/embedcore/internal/codec"
)

// ErrMiss is returned by Get when the key does not exist in Redis. Callers
// use errors.Is(err, rediscache.ErrMiss) to distinguish a cache miss from a
// genuine Redis error.
var ErrMiss = errors.New("rediscache: miss")

// Store is the Redis cache tier adapter.
type Store struct {
	client    redis.UniversalClient
	codec     codec.Codec
	keyPrefix string
	ttl       time.Duration
}

// Options configures a new Store.
type Options struct {
	Client    redis.UniversalClient
	Codec     codec.Codec
	KeyPrefix string
	TTL       time.Duration
}

// New creates a new Store.
func New(opts Options) *Store {
	if opts.Codec == nil {
		opts.Codec = codec.MsgPack{}
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "embedcore"
	}
	return &Store{
		client:    opts.Client,
		codec:     opts.Codec,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
	}
}

func (s *Store) key(userID, sessionID string) string {
	return s.keyPrefix + ":vec:" + userID + ":" + sessionID
}

// Set stores an obfuscated vector for (userID, sessionID).
func (s *Store) Set(ctx context.Context, userID, sessionID string, vec []float64) error {
	b, err := s.codec.Marshal(vec)
	if err != nil {
		return fmt.Errorf("rediscache marshal: %w", err)
	}
	k := s.key(userID, sessionID)
	if err := s.client.Set(ctx, k, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("rediscache set %s: %w", k, err)
	}
	return nil
}

// Get retrieves the cached obfuscated vector for (userID, sessionID).
// Returns ErrMiss when no value is cached.
func (s *Store) Get(ctx context.Context, userID, sessionID string) ([]float64, error) {
	k := s.key(userID, sessionID)
	b, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("rediscache get %s: %w", k, err)
	}
	var vec []float64
	if err := s.codec.Unmarshal(b, &vec); err != nil {
		return nil, fmt.Errorf("rediscache unmarshal: %w", err)
	}
	return vec, nil
}

// Delete removes the cached vector for (userID, sessionID).
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.client.Del(ctx, s.key(userID, sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rediscache delete: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
