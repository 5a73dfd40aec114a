// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// vectorstore.go — persistence of obfuscated vectors: breaker-guarded
// writes and reads against durable storage, fronted by an in-process LRU
// cache and an optional Redis tier, with a local fallback appender for
// writes arriving while the circuit is open.

package embedcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AndrewDonelson/embedcore/internal/breaker"
	"github.com/AndrewDonelson/embedcore/internal/cache"
	"github.com/AndrewDonelson/embedcore/internal/clock"
	"github.com/AndrewDonelson/embedcore/internal/codec"
	"github.com/AndrewDonelson/embedcore/internal/metrics"
	"github.com/AndrewDonelson/embedcore/internal/rediscache"
	"github.com/AndrewDonelson/embedcore/internal/store"
)

// VectorStore persists and serves obfuscated vectors keyed by
// (user, session). Durable storage is the source of truth; the cache tiers
// only accelerate reads and are rebuilt from storage on a miss.
type VectorStore struct {
	backend store.VectorBackend
	memory  *cache.Cache
	redis   *rediscache.Store
	brk     *breaker.Breaker
	codec   codec.Codec
	clock   clock.Clock
	logger  Logger
	metrics metrics.Recorder
	timeout time.Duration
	fb      *fallbackLog

	saves atomic.Int64
	loads atomic.Int64
}

// VectorStoreOptions configures a VectorStore.
type VectorStoreOptions struct {
	Backend VectorBackend

	// In-process cache bound and TTL (capacity defaults to 1024).
	CacheCapacity int
	CacheTTL      time.Duration

	// Redis, when set, enables the Redis read-accelerator tier.
	Redis    redis.UniversalClient
	RedisTTL time.Duration

	// Breaker settings (default: open after 5 consecutive failures,
	// half-open trial after 30s).
	BreakerThreshold    int32
	BreakerResetTimeout time.Duration

	Codec   Codec
	Clock   Clock
	Logger  Logger
	Metrics Recorder

	// Timeout bounds each backend call so a hung downstream cannot block
	// a breaker-guarded caller; expiry counts as a breaker failure.
	Timeout time.Duration
	// FallbackPath, when set, enables JSONL capture of records that could
	// not be written while the circuit is open.
	FallbackPath string
}

// NewVectorStore creates a VectorStore. Backend is required.
func NewVectorStore(opts VectorStoreOptions) (*VectorStore, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("%w: vector store requires a backend", ErrInvalidConfig)
	}
	if opts.CacheCapacity == 0 {
		opts.CacheCapacity = 1024
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerResetTimeout == 0 {
		opts.BreakerResetTimeout = 30 * time.Second
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	vs := &VectorStore{
		backend: opts.Backend,
		memory: cache.New(cache.Options{
			MaxEntries: opts.CacheCapacity,
			TTL:        opts.CacheTTL,
			Clock:      opts.Clock,
		}),
		brk:     breaker.New(opts.BreakerThreshold, opts.BreakerResetTimeout, opts.Clock),
		codec:   opts.Codec,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
	}
	if opts.Redis != nil {
		vs.redis = rediscache.New(rediscache.Options{
			Client: opts.Redis,
			Codec:  opts.Codec,
			TTL:    opts.RedisTTL,
		})
	}
	if opts.FallbackPath != "" {
		vs.fb = newFallbackLog(opts.FallbackPath)
	}
	return vs, nil
}

func cacheKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Save appends an obfuscated vector record to durable storage through the
// circuit breaker and, on success, primes the cache tiers. When the circuit
// is open the record is captured to the fallback log (if configured) and
// ErrUnavailable is returned so the caller can degrade gracefully.
func (vs *VectorStore) Save(ctx context.Context, userID, sessionID, platform string, obfuscated []float64) (int64, error) {
	if userID == "" || sessionID == "" {
		return 0, fmt.Errorf("%w: user id and session id must not be empty", ErrInvalidInput)
	}
	if err := validateVector(obfuscated); err != nil {
		return 0, err
	}
	payload, err := vs.codec.Marshal(obfuscated)
	if err != nil {
		return 0, fmt.Errorf("embedcore: encode vector: %w", err)
	}
	rec := store.VectorRecord{
		UserID:    userID,
		SessionID: sessionID,
		Platform:  platform,
		Timestamp: vs.clock.Now().UTC(),
		Payload:   payload,
	}

	vs.saves.Add(1)
	start := vs.clock.Now()
	var id int64
	err = vs.brk.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, vs.timeout)
		defer cancel()
		var ierr error
		id, ierr = vs.backend.InsertVector(cctx, rec)
		return ierr
	})
	vs.metrics.RecordLatency("vectorstore", "save", vs.clock.Now().Sub(start))
	vs.metrics.RecordBreakerState(vs.brk.State())
	if err != nil {
		vs.metrics.RecordError("vectorstore", "save")
		if errors.Is(err, breaker.ErrOpen) {
			vs.captureFallback(rec, obfuscated)
			return 0, fmt.Errorf("%w: save %s/%s rejected", ErrUnavailable, userID, sessionID)
		}
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	vs.memory.Set(cacheKey(userID, sessionID), obfuscated)
	if vs.redis != nil {
		if rerr := vs.redis.Set(ctx, userID, sessionID, obfuscated); rerr != nil {
			// Cache priming is best-effort; durable storage already holds
			// the record.
			vs.logger.Warn("redis cache set failed", "user_id", userID, "error", rerr)
		}
	}
	vs.logger.Debug("vector saved", "user_id", userID, "session_id", sessionID, "record_id", id)
	return id, nil
}

// Load returns the most recent obfuscated vector for (userID, sessionID).
// Cache tiers are consulted first; a durable-storage miss is the distinct
// ErrNotFound outcome, while a rejected call surfaces as ErrUnavailable.
func (vs *VectorStore) Load(ctx context.Context, userID, sessionID string) ([]float64, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user id and session id must not be empty", ErrInvalidInput)
	}
	vs.loads.Add(1)
	key := cacheKey(userID, sessionID)

	if v, ok := vs.memory.Get(key); ok {
		vs.metrics.RecordHit("memory")
		return v.([]float64), nil
	}
	vs.metrics.RecordMiss("memory")

	if vs.redis != nil {
		vec, err := vs.redis.Get(ctx, userID, sessionID)
		switch {
		case err == nil:
			vs.metrics.RecordHit("redis")
			vs.memory.Set(key, vec)
			return vec, nil
		case errors.Is(err, rediscache.ErrMiss):
			vs.metrics.RecordMiss("redis")
		default:
			// A degraded Redis must not fail the read; durable storage
			// remains the source of truth.
			vs.logger.Warn("redis cache get failed", "user_id", userID, "error", err)
		}
	}

	var (
		rec      store.VectorRecord
		notFound bool
	)
	start := vs.clock.Now()
	err := vs.brk.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, vs.timeout)
		defer cancel()
		r, ierr := vs.backend.LatestVector(cctx, userID, sessionID)
		if errors.Is(ierr, store.ErrNoRows) {
			// An empty result is a healthy answer, not a downstream
			// failure; it must not count toward the breaker threshold.
			notFound = true
			return nil
		}
		rec = r
		return ierr
	})
	vs.metrics.RecordLatency("vectorstore", "load", vs.clock.Now().Sub(start))
	vs.metrics.RecordBreakerState(vs.brk.State())
	if err != nil {
		vs.metrics.RecordError("vectorstore", "load")
		if errors.Is(err, breaker.ErrOpen) {
			return nil, fmt.Errorf("%w: load %s/%s rejected", ErrUnavailable, userID, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if notFound {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, sessionID)
	}

	var vec []float64
	if err := vs.codec.Unmarshal(rec.Payload, &vec); err != nil {
		return nil, fmt.Errorf("embedcore: decode vector record %d: %w", rec.ID, err)
	}
	vs.memory.Set(key, vec)
	if vs.redis != nil {
		if rerr := vs.redis.Set(ctx, userID, sessionID, vec); rerr != nil {
			vs.logger.Warn("redis cache backfill failed", "user_id", userID, "error", rerr)
		}
	}
	return vec, nil
}

// Health pings durable storage through the breaker accounting. Backends
// without a ping (test stubs) are reported healthy.
func (vs *VectorStore) Health(ctx context.Context) error {
	p, ok := vs.backend.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	err := vs.brk.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, vs.timeout)
		defer cancel()
		return p.Ping(cctx)
	})
	if errors.Is(err, breaker.ErrOpen) {
		return fmt.Errorf("%w: health check rejected", ErrUnavailable)
	}
	return err
}

// BreakerState returns the guarding breaker's state for introspection.
func (vs *VectorStore) BreakerState() string { return vs.brk.State() }

// CacheStats returns memory cache statistics.
func (vs *VectorStore) CacheStats() cache.Stats { return vs.memory.Stats() }

func (vs *VectorStore) captureFallback(rec store.VectorRecord, vec []float64) {
	if vs.fb == nil {
		return
	}
	if err := vs.fb.append(rec, vec); err != nil {
		vs.logger.Error("fallback capture failed", "user_id", rec.UserID, "error", err)
		return
	}
	vs.logger.Warn("circuit open; record captured to fallback log",
		"user_id", rec.UserID, "session_id", rec.SessionID)
}
