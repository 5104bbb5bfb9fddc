// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of Statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalTransactions uint64
	Successful        uint64
	Timeouts          uint64
	WriteFailures     uint64
	NotConnected      uint64
	ParseFailures     uint64
	NoData            uint64
	Cancelled         uint64
	StaleResponses    uint64
	FramerOverflows   uint64
	Heals             uint64
	Reconnects        uint64

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // errors/sec
}

// Statistics tracks transaction outcomes and link health.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Update counts one transaction outcome
func (s *Statistics) Update(kind ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalTransactions++
	switch kind {
	case KindNone:
		s.Successful++
	case KindTimeout:
		s.Timeouts++
	case KindWriteFailed:
		s.WriteFailures++
	case KindNotConnected:
		s.NotConnected++
	case KindParseFailure:
		s.ParseFailures++
	case KindNoData:
		s.NoData++
	case KindCancelled:
		s.Cancelled++
	}
	s.LastUpdateTime = time.Now()
}

// RecordStale counts a response that arrived with no request in flight
func (s *Statistics) RecordStale() {
	s.mu.Lock()
	s.StaleResponses++
	s.mu.Unlock()
}

// RecordOverflows counts framer buffer overflows
func (s *Statistics) RecordOverflows(n uint64) {
	s.mu.Lock()
	s.FramerOverflows += n
	s.mu.Unlock()
}

// RecordHeal counts a self-heal re-initialization
func (s *Statistics) RecordHeal() {
	s.mu.Lock()
	s.Heals++
	s.mu.Unlock()
}

// RecordReconnect counts a reconnection after link loss
func (s *Statistics) RecordReconnect() {
	s.mu.Lock()
	s.Reconnects++
	s.mu.Unlock()
}

func (s *Statistics) errorCount() uint64 {
	return s.Timeouts + s.WriteFailures + s.NotConnected + s.ParseFailures + s.NoData
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.TotalTransactions) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var okPercent, timeoutPercent, parsePercent, noDataPercent float64
	if snap.TotalTransactions > 0 {
		total := float64(snap.TotalTransactions)
		okPercent = float64(snap.Successful) * 100.0 / total
		timeoutPercent = float64(snap.Timeouts) * 100.0 / total
		parsePercent = float64(snap.ParseFailures) * 100.0 / total
		noDataPercent = float64(snap.NoData) * 100.0 / total
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", snap.TotalTransactions)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", snap.Successful, okPercent)

	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", snap.Timeouts, timeoutPercent)
	}
	if snap.ParseFailures > 0 {
		result += fmt.Sprintf("Parse Failures:  %8d (%.1f%%)\n", snap.ParseFailures, parsePercent)
	}
	if snap.NoData > 0 {
		result += fmt.Sprintf("No Data:         %8d (%.1f%%)\n", snap.NoData, noDataPercent)
	}
	if snap.WriteFailures > 0 {
		result += fmt.Sprintf("Write Failures:  %8d\n", snap.WriteFailures)
	}
	if snap.Cancelled > 0 {
		result += fmt.Sprintf("Cancelled:       %8d\n", snap.Cancelled)
	}
	if snap.NotConnected > 0 {
		result += fmt.Sprintf("Not Connected:   %8d\n", snap.NotConnected)
	}
	if snap.StaleResponses > 0 {
		result += fmt.Sprintf("Stale Responses: %8d\n", snap.StaleResponses)
	}
	if snap.FramerOverflows > 0 {
		result += fmt.Sprintf("Framer Overflow: %8d\n", snap.FramerOverflows)
	}
	if snap.Heals > 0 {
		result += fmt.Sprintf("Self-Heals:      %8d\n", snap.Heals)
	}
	if snap.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", snap.Reconnects)
	}

	result += fmt.Sprintf("Transaction Rate:%8.1f tx/sec\n", snap.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{StartTime: now, LastUpdateTime: now}
}
