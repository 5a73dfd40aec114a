// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// crypto.go — AES-256-GCM key cipher used to encrypt per-user keys under
// the master secret before they touch durable storage.

package embedcore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// KeyCipher encrypts and decrypts per-user keys at rest. Decrypt must fail
// when the ciphertext has been tampered with or was produced under a
// different master secret.
type KeyCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AES256GCM implements KeyCipher with AES-256-GCM authenticated encryption.
type AES256GCM struct {
	block cipher.Block
}

// NewAES256GCM creates an AES-256-GCM key cipher from a 32-byte master secret.
func NewAES256GCM(masterSecret []byte) (*AES256GCM, error) {
	if len(masterSecret) != 32 {
		return nil, fmt.Errorf("%w: master secret must be exactly 32 bytes (got %d)", ErrInvalidConfig, len(masterSecret))
	}
	block, err := aes.NewCipher(masterSecret)
	if err != nil {
		return nil, err
	}
	return &AES256GCM{block: block}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with a random nonce.
// Output: nonce (12 bytes) || ciphertext.
func (c *AES256GCM) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := cipher.NewGCM(c.block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt. Authentication failures
// are reported as ErrKeyCipher and must never be silently ignored: a wrong
// master secret would otherwise yield a wrong-but-plausible user key.
func (c *AES256GCM) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := cipher.NewGCM(c.block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrKeyCipher)
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyCipher, err)
	}
	return plain, nil
}
