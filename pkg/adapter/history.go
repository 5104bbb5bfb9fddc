// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryCapacity is the number of transactions kept for diagnostics.
const HistoryCapacity = 100

// Transaction is one completed request/response exchange.
type Transaction struct {
	Session  uuid.UUID     `cbor:"1,keyasint"`
	Command  string        `cbor:"2,keyasint"`
	Response string        `cbor:"3,keyasint"`
	At       time.Time     `cbor:"4,keyasint"`
	Duration time.Duration `cbor:"5,keyasint"`
	Err      bool          `cbor:"6,keyasint"`
	Kind     ErrorKind     `cbor:"7,keyasint"`
}

// Recorder receives every transaction appended to a History.
type Recorder interface {
	Record(tx Transaction) error
}

// History is a bounded FIFO of transactions. Appends come from the command
// queue; Snapshot may be called from any goroutine.
type History struct {
	mu        sync.RWMutex
	entries   []Transaction
	capacity  int
	recorders []Recorder
	log       *slog.Logger
}

// NewHistory creates a history holding up to capacity transactions. A
// capacity of zero or less selects HistoryCapacity.
func NewHistory(capacity int, logger *slog.Logger) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		entries:  make([]Transaction, 0, capacity),
		capacity: capacity,
		log:      logger,
	}
}

// AddRecorder attaches a sink for future transactions.
func (h *History) AddRecorder(r Recorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorders = append(h.recorders, r)
}

// Append adds tx, evicting the oldest entry when full.
func (h *History) Append(tx Transaction) {
	h.mu.Lock()
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, tx)
	recorders := h.recorders
	h.mu.Unlock()

	for _, r := range recorders {
		if err := r.Record(tx); err != nil {
			h.log.Warn("transaction recorder failed", "error", err)
		}
	}
}

// Snapshot returns a copy of the history, oldest first.
func (h *History) Snapshot() []Transaction {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Transaction, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored transactions.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear drops all stored transactions.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}
