// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// transform.go — reversible additive masking of embedding vectors. The mask
// is a deterministic function of the user key alone, so the same key always
// regenerates the identical pattern and Deobfuscate perfectly undoes
// Obfuscate without the pattern ever being stored.

package embedcore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
)

// patternAmplitude bounds each mask element to [-0.05, 0.05).
const patternAmplitude = 0.05

// DefaultTolerance is the per-element absolute tolerance for round-trip
// comparisons. Addition followed by subtraction is not bit-exact in floating
// point, so equality checks must be tolerance-based.
const DefaultTolerance = 1e-10

// Obfuscate masks vec by adding a deterministic per-element pattern derived
// from key. The returned slice is freshly allocated; vec is not modified.
func Obfuscate(vec []float64, key []byte) ([]float64, error) {
	if err := validateVector(vec); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: key must not be empty", ErrInvalidInput)
	}
	p := maskPattern(key, len(vec))
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v + p[i]
	}
	return out, nil
}

// Deobfuscate regenerates the pattern from key and subtracts it, restoring
// the vector passed to Obfuscate under the same key. A different key yields
// a structurally valid but wrong vector; correctness depends entirely on
// correct key binding.
func Deobfuscate(vec []float64, key []byte) ([]float64, error) {
	if err := validateVector(vec); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: key must not be empty", ErrInvalidInput)
	}
	p := maskPattern(key, len(vec))
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v - p[i]
	}
	return out, nil
}

// maskPattern derives n mask elements from key.
//
// The derivation is part of the storage format and must never change:
// seed = big-endian int64 of the first 8 bytes of SHA-256(key), fed to
// math/rand's generator, whose output sequence for a given seed is stable
// across Go releases. Each element is r.Float64()*0.1 - 0.05.
func maskPattern(key []byte, n int) []float64 {
	sum := sha256.Sum256(key)
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	r := rand.New(rand.NewSource(seed))
	p := make([]float64, n)
	for i := range p {
		p[i] = r.Float64()*2*patternAmplitude - patternAmplitude
	}
	return p
}

// EqualWithin reports whether a and b have the same length and match
// element-wise within the absolute tolerance tol.
func EqualWithin(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func validateVector(vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: vector must not be empty", ErrInvalidInput)
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: vector[%d] is not finite", ErrInvalidInput, i)
		}
	}
	return nil
}
