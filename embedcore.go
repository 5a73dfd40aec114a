// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// embedcore.go — Config and the EmbedCore facade composing the transformer,
// key store, and vector store into the obfuscate-then-store and
// load-then-deobfuscate operations exposed to callers.

package embedcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AndrewDonelson/embedcore/internal/clock"
	"github.com/AndrewDonelson/embedcore/internal/codec"
	"github.com/AndrewDonelson/embedcore/internal/metrics"
	"github.com/AndrewDonelson/embedcore/internal/store"
	"github.com/AndrewDonelson/embedcore/internal/store/pgstore"
	"github.com/AndrewDonelson/embedcore/internal/store/sqlitestore"
)

// Re-export types so callers only import this package.
type (
	Codec          = codec.Codec
	Clock          = clock.Clock
	Recorder       = metrics.Recorder
	KeyBackend     = store.KeyBackend
	VectorBackend  = store.VectorBackend
	StorageBackend = store.Backend
)

// Result status values returned by Store and Retrieve.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ────────────────────────────────────────────────────────────────────────────
// Config
// ────────────────────────────────────────────────────────────────────────────

// Config contains all EmbedCore configuration.
type Config struct {
	// MasterSecret is the 32-byte secret protecting user keys at rest.
	// Supplied from an external secret source at startup; it must never be
	// stored alongside the ciphertexts it protects.
	MasterSecret []byte

	// Durable storage. PostgresDSN takes precedence; otherwise SQLitePath
	// (default "embedcore.db") selects the embedded backend. Backend, when
	// set, overrides both.
	PostgresDSN string
	SQLitePath  string
	Backend     StorageBackend

	// Optional Redis read-accelerator tier.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Circuit breaker guarding durable storage.
	BreakerThreshold    int32
	BreakerResetTimeout time.Duration

	// In-process cache.
	CacheCapacity int
	CacheTTL      time.Duration

	// Dimension, when non-zero, rejects vectors of any other length.
	Dimension int

	// Tolerance is the per-element absolute tolerance for round-trip
	// comparisons (default 1e-10).
	Tolerance float64

	// OpTimeout bounds each durable storage call.
	OpTimeout time.Duration

	// FallbackPath enables JSONL capture of writes rejected while the
	// circuit is open.
	FallbackPath string

	// Optional overrideable components
	Codec   Codec
	Clock   Clock
	Logger  Logger
	Metrics Recorder
}

func (c *Config) defaults() {
	if c.Codec == nil {
		c.Codec = codec.JSON{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "embedcore.db"
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerResetTimeout == 0 {
		c.BreakerResetTimeout = 30 * time.Second
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = 1024
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 5 * time.Second
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Results
// ────────────────────────────────────────────────────────────────────────────

// StoreResult is the structured outcome of EmbedCore.Store.
type StoreResult struct {
	Status       string `json:"status"`
	RecordID     int64  `json:"record_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// RetrieveResult is the structured outcome of EmbedCore.Retrieve. Vector is
// only set on success; a missing record is never substituted with zeros.
type RetrieveResult struct {
	Status       string    `json:"status"`
	Vector       []float64 `json:"vector,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

type coreStats struct {
	Stores    atomic.Int64
	Retrieves atomic.Int64
	Errors    atomic.Int64
}

// Stats is the snapshot returned by EmbedCore.Stats().
type Stats struct {
	Stores       int64
	Retrieves    int64
	Errors       int64
	CacheHits    int64
	CacheMisses  int64
	CacheEntries int64
	BreakerState string
}

// ────────────────────────────────────────────────────────────────────────────
// EmbedCore
// ────────────────────────────────────────────────────────────────────────────

// EmbedCore is the main entry-point for the library.
type EmbedCore struct {
	cfg     Config
	keys    *KeyStore
	vectors *VectorStore
	backend StorageBackend
	rdb     *redis.Client
	stats   coreStats
	closed  atomic.Bool
}

// New creates and initialises an EmbedCore from the provided Config.
func New(cfg Config) (*EmbedCore, error) {
	cfg.defaults()

	cipher, err := NewAES256GCM(cfg.MasterSecret)
	if err != nil {
		return nil, err
	}

	ec := &EmbedCore{cfg: cfg}

	// Durable storage
	backend := cfg.Backend
	if backend == nil {
		switch {
		case cfg.PostgresDSN != "":
			backend, err = pgstore.Connect(context.Background(), cfg.PostgresDSN)
		default:
			backend, err = sqlitestore.Open(cfg.SQLitePath)
		}
		if err != nil {
			return nil, fmt.Errorf("embedcore: storage init: %w", err)
		}
		ec.backend = backend
	}

	// Key store
	ec.keys, err = NewKeyStore(KeyStoreOptions{
		Backend: backend,
		Cipher:  cipher,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	// Redis tier
	if cfg.RedisAddr != "" {
		ec.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	// Vector store
	vsOpts := VectorStoreOptions{
		Backend:             backend,
		CacheCapacity:       cfg.CacheCapacity,
		CacheTTL:            cfg.CacheTTL,
		RedisTTL:            cfg.RedisTTL,
		BreakerThreshold:    cfg.BreakerThreshold,
		BreakerResetTimeout: cfg.BreakerResetTimeout,
		Codec:               cfg.Codec,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger,
		Metrics:             cfg.Metrics,
		Timeout:             cfg.OpTimeout,
		FallbackPath:        cfg.FallbackPath,
	}
	if ec.rdb != nil {
		vsOpts.Redis = ec.rdb
	}
	ec.vectors, err = NewVectorStore(vsOpts)
	if err != nil {
		return nil, err
	}

	return ec, nil
}

// Keys returns the key store for direct key lifecycle management.
func (ec *EmbedCore) Keys() *KeyStore { return ec.keys }

// Vectors returns the vector store for direct record access.
func (ec *EmbedCore) Vectors() *VectorStore { return ec.vectors }

// Store resolves (creating if absent) the user's key, obfuscates vec with
// it, and persists the obfuscated vector. The result always carries a
// status; the plaintext key never leaves the call.
func (ec *EmbedCore) Store(ctx context.Context, userID, sessionID, platform string, vec []float64) StoreResult {
	ec.stats.Stores.Add(1)
	if ec.closed.Load() {
		return ec.storeErr(errors.New("embedcore: store is closed"))
	}
	if ec.cfg.Dimension > 0 && len(vec) != ec.cfg.Dimension {
		return ec.storeErr(fmt.Errorf("%w: vector has %d elements, want %d", ErrInvalidInput, len(vec), ec.cfg.Dimension))
	}

	key, err := ec.keys.EnsureKey(ctx, userID)
	if err != nil {
		return ec.storeErr(err)
	}
	obfuscated, err := Obfuscate(vec, key)
	if err != nil {
		return ec.storeErr(err)
	}
	id, err := ec.vectors.Save(ctx, userID, sessionID, platform, obfuscated)
	if err != nil {
		return ec.storeErr(err)
	}
	return StoreResult{Status: StatusSuccess, RecordID: id}
}

// Retrieve loads the most recent obfuscated vector for (userID, sessionID)
// and deobfuscates it with the user's key. A vector can never be recovered
// without its key: a user with no registered key yields an error result.
func (ec *EmbedCore) Retrieve(ctx context.Context, userID, sessionID string) RetrieveResult {
	ec.stats.Retrieves.Add(1)
	if ec.closed.Load() {
		return ec.retrieveErr(errors.New("embedcore: store is closed"))
	}

	obfuscated, err := ec.vectors.Load(ctx, userID, sessionID)
	if err != nil {
		return ec.retrieveErr(err)
	}
	key, err := ec.keys.GetKey(ctx, userID)
	if err != nil {
		return ec.retrieveErr(err)
	}
	vec, err := Deobfuscate(obfuscated, key)
	if err != nil {
		return ec.retrieveErr(err)
	}
	return RetrieveResult{Status: StatusSuccess, Vector: vec}
}

// RotateUserKey replaces the user's key. Forward-only: vectors stored under
// the previous key will no longer deobfuscate to their original values.
func (ec *EmbedCore) RotateUserKey(ctx context.Context, userID string) error {
	_, err := ec.keys.RotateKey(ctx, userID)
	return err
}

// Health reports whether durable storage is reachable.
func (ec *EmbedCore) Health(ctx context.Context) error {
	return ec.vectors.Health(ctx)
}

// Stats returns a snapshot of operation counters, cache statistics, and the
// breaker state.
func (ec *EmbedCore) Stats() Stats {
	cs := ec.vectors.CacheStats()
	return Stats{
		Stores:       ec.stats.Stores.Load(),
		Retrieves:    ec.stats.Retrieves.Load(),
		Errors:       ec.stats.Errors.Load(),
		CacheHits:    cs.Hits,
		CacheMisses:  cs.Misses,
		CacheEntries: cs.Entries,
		BreakerState: ec.vectors.BreakerState(),
	}
}

// Close releases storage pools and the Redis client. Only resources created
// by New are closed; a Backend supplied via Config stays open.
func (ec *EmbedCore) Close() error {
	if !ec.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if ec.rdb != nil {
		errs = append(errs, ec.rdb.Close())
	}
	if ec.backend != nil {
		errs = append(errs, ec.backend.Close())
	}
	return errors.Join(errs...)
}

func (ec *EmbedCore) storeErr(err error) StoreResult {
	ec.stats.Errors.Add(1)
	ec.cfg.Logger.Error("store failed", "error", err)
	return StoreResult{Status: StatusError, ErrorMessage: err.Error()}
}

func (ec *EmbedCore) retrieveErr(err error) RetrieveResult {
	ec.stats.Errors.Add(1)
	ec.cfg.Logger.Error("retrieve failed", "error", err)
	return RetrieveResult{Status: StatusError, ErrorMessage: err.Error()}
}
