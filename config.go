// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// config.go — environment-based configuration loading. Every Config field
// that makes sense outside code is settable via an EMBEDCORE_* variable;
// the master secret arrives base64-encoded so binary secrets survive the
// environment.

package embedcore

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// FromEnv builds a Config from EMBEDCORE_* environment variables:
//
//	EMBEDCORE_MASTER_SECRET         base64 of the 32-byte master secret (required)
//	EMBEDCORE_POSTGRES_DSN          PostgreSQL DSN (selects the pg backend)
//	EMBEDCORE_SQLITE_PATH           SQLite path (default "embedcore.db")
//	EMBEDCORE_REDIS_ADDR            Redis host:port (enables the Redis tier)
//	EMBEDCORE_REDIS_PASSWORD        Redis password
//	EMBEDCORE_REDIS_DB              Redis database number
//	EMBEDCORE_REDIS_TTL             Redis entry TTL, e.g. "30m"
//	EMBEDCORE_BREAKER_THRESHOLD     consecutive failures before the circuit opens
//	EMBEDCORE_BREAKER_RESET_TIMEOUT open-state cooldown, e.g. "30s"
//	EMBEDCORE_CACHE_CAPACITY        in-process cache entry bound
//	EMBEDCORE_CACHE_TTL             in-process cache entry TTL
//	EMBEDCORE_DIMENSION             required vector length (0 accepts any)
//	EMBEDCORE_TOLERANCE             round-trip comparison tolerance
//	EMBEDCORE_OP_TIMEOUT            per-call storage timeout, e.g. "5s"
//	EMBEDCORE_FALLBACK_PATH         JSONL fallback log path
func FromEnv() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("EMBEDCORE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "EMBEDCORE_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Config{
		PostgresDSN:   k.String("postgres_dsn"),
		SQLitePath:    k.String("sqlite_path"),
		RedisAddr:     k.String("redis_addr"),
		RedisPassword: k.String("redis_password"),
		FallbackPath:  k.String("fallback_path"),
	}

	secret := k.String("master_secret")
	if secret == "" {
		return Config{}, fmt.Errorf("%w: EMBEDCORE_MASTER_SECRET is required", ErrInvalidConfig)
	}
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return Config{}, fmt.Errorf("%w: EMBEDCORE_MASTER_SECRET is not valid base64: %v", ErrInvalidConfig, err)
	}
	cfg.MasterSecret = raw

	ints := []struct {
		key  string
		dest func(int)
	}{
		{"redis_db", func(v int) { cfg.RedisDB = v }},
		{"breaker_threshold", func(v int) { cfg.BreakerThreshold = int32(v) }},
		{"cache_capacity", func(v int) { cfg.CacheCapacity = v }},
		{"dimension", func(v int) { cfg.Dimension = v }},
	}
	for _, f := range ints {
		if s := k.String(f.key); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, fmt.Errorf("%w: EMBEDCORE_%s: %v", ErrInvalidConfig, strings.ToUpper(f.key), err)
			}
			f.dest(v)
		}
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"redis_ttl", &cfg.RedisTTL},
		{"breaker_reset_timeout", &cfg.BreakerResetTimeout},
		{"cache_ttl", &cfg.CacheTTL},
		{"op_timeout", &cfg.OpTimeout},
	}
	for _, f := range durations {
		if s := k.String(f.key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return Config{}, fmt.Errorf("%w: EMBEDCORE_%s: %v", ErrInvalidConfig, strings.ToUpper(f.key), err)
			}
			*f.dest = d
		}
	}

	if s := k.String("tolerance"); s != "" {
		tol, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: EMBEDCORE_TOLERANCE: %v", ErrInvalidConfig, err)
		}
		cfg.Tolerance = tol
	}

	return cfg, nil
}
