// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// breaker.go — circuit breaker guarding the durable storage backend.
// Closed passes calls through and counts consecutive failures; Open rejects
// calls until the reset timeout elapses; HalfOpen admits exactly one trial
// call whose outcome decides the next state.

// Package breaker implements a closed/open/half-open circuit breaker.
package breaker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/embedcore/internal/clock"
)

// ErrOpen is returned by Do when the circuit is open (or a half-open trial
// is already in flight) and the guarded call was not invoked.
var ErrOpen = errors.New("breaker: circuit open")

const (
	stateClosed   uint32 = 0
	stateOpen     uint32 = 1
	stateHalfOpen uint32 = 2
)

// Breaker tracks consecutive failures of a downstream target. One instance
// is shared by every caller guarding that target; all transitions are
// atomic compare-and-swaps so exactly one goroutine wins the half-open
// trial slot.
type Breaker struct {
	threshold  int32
	resetAfter time.Duration
	clock      clock.Clock

	failures atomic.Int32
	state    atomic.Uint32
	openedAt atomic.Int64 // nanos of clock.Now() at last open transition
}

// New creates a Breaker that opens after threshold consecutive failures and
// allows a half-open trial once resetAfter has elapsed. A nil clk uses the
// system clock.
func New(threshold int32, resetAfter time.Duration, clk clock.Clock) *Breaker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Breaker{threshold: threshold, resetAfter: resetAfter, clock: clk}
}

// Do runs fn under breaker protection. When the circuit is open the call is
// rejected with ErrOpen without invoking fn; otherwise fn's error is
// recorded and returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// allow reports whether a call may proceed, transitioning open→half-open
// when the reset timeout has elapsed. Only the goroutine that wins the CAS
// gets the half-open trial; concurrent callers are rejected.
func (b *Breaker) allow() bool {
	for {
		switch b.state.Load() {
		case stateOpen:
			opened := time.Unix(0, b.openedAt.Load())
			if b.clock.Now().Sub(opened) < b.resetAfter {
				return false
			}
			if b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
				return true
			}
			// Lost the race; re-read the state.
		case stateHalfOpen:
			return false
		default:
			return true
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.failures.Store(0)
	b.state.Store(stateClosed)
}

func (b *Breaker) recordFailure() {
	n := b.failures.Add(1)
	if b.state.CompareAndSwap(stateHalfOpen, stateOpen) {
		b.openedAt.Store(b.clock.Now().UnixNano())
		return
	}
	if n >= b.threshold {
		if b.state.CompareAndSwap(stateClosed, stateOpen) {
			b.openedAt.Store(b.clock.Now().UnixNano())
		}
	}
}

// State returns the current state as "closed", "open" or "half-open".
func (b *Breaker) State() string {
	switch b.state.Load() {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int32 { return b.failures.Load() }
