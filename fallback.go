// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// fallback.go — JSONL appender capturing obfuscated vector records that
// arrive while the circuit is open, so a degraded deployment loses no data
// and an operator can replay the file once storage recovers.

package embedcore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AndrewDonelson/embedcore/internal/store"
)

// fallbackRecord is one line of the fallback log.
type fallbackRecord struct {
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	Platform         string    `json:"platform"`
	Timestamp        time.Time `json:"timestamp"`
	ObfuscatedVector []float64 `json:"obfuscated_vector"`
}

type fallbackLog struct {
	mu   sync.Mutex
	path string
}

func newFallbackLog(path string) *fallbackLog {
	return &fallbackLog{path: path}
}

// append writes one record as a JSON line. The file is opened per call so
// no descriptor is held across quiet periods.
func (f *fallbackLog) append(rec store.VectorRecord, vec []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("embedcore: fallback open: %w", err)
	}
	defer file.Close()

	line := fallbackRecord{
		UserID:           rec.UserID,
		SessionID:        rec.SessionID,
		Platform:         rec.Platform,
		Timestamp:        rec.Timestamp,
		ObfuscatedVector: vec,
	}
	if err := json.NewEncoder(file).Encode(line); err != nil {
		return fmt.Errorf("embedcore: fallback write: %w", err)
	}
	return nil
}
