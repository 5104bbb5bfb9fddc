// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sound

import (
	"context"
	"time"
)

// Scheduler runs a task at a fixed interval.
type Scheduler interface {
	// Every calls task once per interval until ctx is done. The returned
	// channel is closed after the last call has returned.
	Every(ctx context.Context, interval time.Duration, task func(now time.Time)) <-chan struct{}
}

// TickerScheduler schedules with a time.Ticker. Ticks missed while a task
// runs are dropped.
type TickerScheduler struct{}

func (TickerScheduler) Every(ctx context.Context, interval time.Duration, task func(time.Time)) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				task(now)
			}
		}
	}()

	return done
}
