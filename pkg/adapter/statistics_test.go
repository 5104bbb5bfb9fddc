// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatisticsCountsEachKind(t *testing.T) {
	s := NewStatistics()
	for _, k := range []ErrorKind{KindNone, KindNone, KindTimeout, KindWriteFailed, KindNotConnected, KindParseFailure, KindNoData, KindCancelled} {
		s.Update(k)
	}
	s.RecordStale()
	s.RecordOverflows(2)
	s.RecordHeal()
	s.RecordReconnect()

	c := s.Snapshot()
	assert.Equal(t, uint64(8), c.TotalTransactions)
	assert.Equal(t, uint64(2), c.Successful)
	assert.Equal(t, uint64(1), c.Timeouts)
	assert.Equal(t, uint64(1), c.WriteFailures)
	assert.Equal(t, uint64(1), c.NotConnected)
	assert.Equal(t, uint64(1), c.ParseFailures)
	assert.Equal(t, uint64(1), c.NoData)
	assert.Equal(t, uint64(1), c.Cancelled)
	assert.Equal(t, uint64(1), c.StaleResponses)
	assert.Equal(t, uint64(2), c.FramerOverflows)
	assert.Equal(t, uint64(1), c.Heals)
	assert.Equal(t, uint64(1), c.Reconnects)
}

func TestStatisticsString(t *testing.T) {
	s := NewStatistics()
	s.Update(KindNone)
	s.Update(KindTimeout)

	out := s.String()
	assert.Contains(t, out, "Transactions:           2")
	assert.Contains(t, out, "Successful:             1 (50.0%)")
	assert.Contains(t, out, "Timeouts:               1 (50.0%)")
	assert.NotContains(t, out, "Parse Failures")
	assert.NotContains(t, out, "Reconnects")
}

func TestStatisticsReset(t *testing.T) {
	s := NewStatistics()
	s.Update(KindTimeout)
	s.RecordHeal()

	s.Reset()

	c := s.Snapshot()
	assert.Zero(t, c.TotalTransactions)
	assert.Zero(t, c.Timeouts)
	assert.Zero(t, c.Heals)
	assert.False(t, c.StartTime.IsZero())
}
