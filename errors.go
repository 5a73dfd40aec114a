// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// errors.go — sentinel error variables returned by the public EmbedCore API,
// covering input validation, key lifecycle, cipher authentication, and
// storage availability.

// Package embedcore stores per-user embedding vectors in a reversibly
// obfuscated form: each vector is masked with a deterministic additive
// pattern derived from a per-user secret key, the keys themselves are held
// encrypted under a master secret, and obfuscated vectors are persisted
// through a cached, circuit-breaker-guarded storage layer.
package embedcore

import "errors"

// Input errors
var (
	ErrInvalidInput  = errors.New("embedcore: invalid input")
	ErrInvalidConfig = errors.New("embedcore: invalid configuration")
)

// Key errors
var (
	ErrKeyNotFound = errors.New("embedcore: no key registered for user")
	ErrKeyExists   = errors.New("embedcore: key already exists for user")
	ErrKeyCipher   = errors.New("embedcore: key decryption failed (tampered ciphertext or wrong master secret)")
)

// Storage errors
var (
	ErrNotFound    = errors.New("embedcore: no vector record found")
	ErrUnavailable = errors.New("embedcore: storage unavailable (circuit open)")
	ErrPersistence = errors.New("embedcore: persistence failure")
)
