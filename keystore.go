// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// keystore.go — per-user key lifecycle: generation, retrieval, and rotation.
// Plaintext keys exist only in memory; durable storage only ever sees the
// ciphertext produced by the key cipher.

package embedcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/AndrewDonelson/embedcore/internal/clock"
	"github.com/AndrewDonelson/embedcore/internal/store"
)

// userKeyLen is the length of generated per-user keys in bytes.
const userKeyLen = 32

// KeyStore issues, retrieves, and rotates per-user keys. Operations on the
// same user are serialized by a per-user lock so that two concurrent
// provisioning calls cannot race two different keys into existence.
type KeyStore struct {
	backend store.KeyBackend
	cipher  KeyCipher
	clock   clock.Clock
	logger  Logger
	locks   sync.Map // userID -> *sync.Mutex
}

// KeyStoreOptions configures a KeyStore.
type KeyStoreOptions struct {
	Backend KeyBackend
	Cipher  KeyCipher
	Clock   Clock
	Logger  Logger
}

// NewKeyStore creates a KeyStore. Backend and Cipher are required.
func NewKeyStore(opts KeyStoreOptions) (*KeyStore, error) {
	if opts.Backend == nil || opts.Cipher == nil {
		return nil, fmt.Errorf("%w: key store requires a backend and a cipher", ErrInvalidConfig)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &KeyStore{
		backend: opts.Backend,
		cipher:  opts.Cipher,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}, nil
}

func (ks *KeyStore) userLock(userID string) *sync.Mutex {
	mu, _ := ks.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GenerateKey creates a cryptographically random key for userID, persists
// it encrypted, and returns the plaintext key to the caller only. Returns
// ErrKeyExists if the user already has a key; use RotateKey to replace it
// or EnsureKey for get-or-create semantics.
func (ks *KeyStore) GenerateKey(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}
	mu := ks.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return ks.generateLocked(ctx, userID)
}

// generateLocked must be called with the user's lock held.
func (ks *KeyStore) generateLocked(ctx context.Context, userID string) ([]byte, error) {
	key := make([]byte, userKeyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("embedcore: key generation: %w", err)
	}
	ciphertext, err := ks.cipher.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("embedcore: key encryption: %w", err)
	}
	rec := store.KeyRecord{
		UserID:     userID,
		Ciphertext: ciphertext,
		CreatedAt:  ks.clock.Now().UTC(),
	}
	if err := ks.backend.InsertKey(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrKeyExists, userID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ks.logger.Info("key generated", "user_id", userID)
	return key, nil
}

// GetKey loads and decrypts the key for userID. A missing record is the
// recoverable ErrKeyNotFound outcome; callers should respond by
// provisioning a key, not by treating it as fatal. A ciphertext that fails
// authentication surfaces as ErrKeyCipher and must never be retried
// silently.
func (ks *KeyStore) GetKey(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}
	rec, err := ks.backend.GetKey(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, userID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	key, err := ks.cipher.Decrypt(rec.Ciphertext)
	if err != nil {
		ks.logger.Error("key decryption failed", "user_id", userID)
		return nil, err
	}
	ks.logger.Debug("key retrieved", "user_id", userID)
	return key, nil
}

// EnsureKey returns the user's key, generating one if none exists. The
// get-or-create is performed under the user's lock, so concurrent callers
// for the same user always agree on a single key.
func (ks *KeyStore) EnsureKey(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}
	mu := ks.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	key, err := ks.GetKey(ctx, userID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	return ks.generateLocked(ctx, userID)
}

// RotateKey replaces the user's key with a freshly generated one and
// returns the new plaintext key. Rotation is forward-only: vectors
// obfuscated under the previous key are not re-obfuscated and can no longer
// be correctly recovered. A user without an existing key is provisioned.
func (ks *KeyStore) RotateKey(ctx context.Context, userID string) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}
	mu := ks.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := ks.clock.Now().UTC()
	rec := store.KeyRecord{UserID: userID, CreatedAt: now}
	prev, err := ks.backend.GetKey(ctx, userID)
	switch {
	case err == nil:
		rec.CreatedAt = prev.CreatedAt
		rec.RotatedAt = now
	case errors.Is(err, store.ErrNoRows):
		// First provisioning via rotation; rotated_at stays unset.
	default:
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	key := make([]byte, userKeyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("embedcore: key generation: %w", err)
	}
	rec.Ciphertext, err = ks.cipher.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("embedcore: key encryption: %w", err)
	}
	if err := ks.backend.ReplaceKey(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ks.logger.Info("key rotated", "user_id", userID)
	return key, nil
}
