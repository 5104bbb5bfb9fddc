// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rumble/pkg/elm"
	"github.com/Thermoquad/rumble/pkg/telemetry"
)

const motorStatus1726 = "00A\r0: 62 01 01 06 BE 00\r1: 00 00 00 00 00 00 00"

func TestPoller_UpdatesRegister(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, reply(motorStatus1726))
	reg := telemetry.NewRegister()

	p := NewPoller(exec, reg, PollerOptions{})
	res := p.PollOnce(context.Background())

	require.True(t, res.SpeedOK)
	assert.Equal(t, 1726, res.Speed)
	assert.Equal(t, SourcePrimary, res.Source)
	assert.Equal(t, 1726, reg.Speed())
}

func TestPoller_FailuresKeepLastValue(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus,
		reply(motorStatus1726),
		failure(KindTimeout),
		failure(KindWriteFailed),
	)
	reg := telemetry.NewRegister()
	p := NewPoller(exec, reg, PollerOptions{})

	for i := 0; i < 3; i++ {
		p.PollOnce(context.Background())
	}
	assert.Equal(t, 1726, reg.Speed(), "failures never zero the register")
}

func TestPoller_FallbackAlternation(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, reply("NO DATA"), reply(motorStatus1726))
	exec.script(elm.PIDEngineRPM, reply("41 0C 0F A0"), reply("7F 01 12"))
	reg := telemetry.NewRegister()
	p := NewPoller(exec, reg, PollerOptions{})
	ctx := context.Background()

	res := p.PollOnce(ctx)
	assert.ErrorIs(t, res.Err, ErrNoData)
	assert.Equal(t, SourceFallback, p.Source())

	res = p.PollOnce(ctx)
	require.True(t, res.SpeedOK)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, 1000, reg.Speed())
	assert.Equal(t, SourceFallback, p.Source(), "successful fallback stays")

	res = p.PollOnce(ctx)
	assert.ErrorIs(t, res.Err, ErrParseFailure)
	assert.Equal(t, SourcePrimary, p.Source(), "fallback parse failure switches back")
	assert.Equal(t, 1000, reg.Speed())

	res = p.PollOnce(ctx)
	require.True(t, res.SpeedOK)
	assert.Equal(t, 1726, reg.Speed())

	assert.Equal(t, []string{"220101", "010C", "010C", "220101"}, exec.commands())
}

func TestPoller_SecondaryEveryN(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, reply(motorStatus1726))
	exec.script(elm.PIDVehicleSpeed, reply("41 0D 3C"))
	reg := telemetry.NewRegister()
	p := NewPoller(exec, reg, PollerOptions{SecondaryEvery: 5})

	var secondary int
	for i := 0; i < 10; i++ {
		if res := p.PollOnce(context.Background()); res.VehicleOK {
			secondary++
			assert.Equal(t, 60, res.VehicleSpeed)
		}
	}
	assert.Equal(t, 2, secondary)

	s, ok := reg.Load()
	require.True(t, ok)
	assert.True(t, s.HasVehicleSpeed)
	assert.Equal(t, 60, s.VehicleSpeed)
	assert.Equal(t, 1726, s.Speed)
}

// blockingHeal counts invocations and blocks until released.
type blockingHeal struct {
	calls   atomic.Int32
	release chan struct{}
}

func newBlockingHeal() *blockingHeal {
	return &blockingHeal{release: make(chan struct{})}
}

func (h *blockingHeal) run(ctx context.Context) error {
	h.calls.Add(1)
	select {
	case <-h.release:
	case <-ctx.Done():
	}
	return nil
}

func TestPoller_SelfHealAfterThreeTimeouts(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, failure(KindTimeout))
	heal := newBlockingHeal()
	p := NewPoller(exec, telemetry.NewRegister(), PollerOptions{Heal: heal.run})
	ctx := context.Background()

	p.PollOnce(ctx)
	p.PollOnce(ctx)
	assert.Equal(t, 2, p.ConsecutiveTimeouts())
	assert.Zero(t, heal.calls.Load())

	res := p.PollOnce(ctx)
	assert.True(t, res.HealStarted)
	assert.Equal(t, 0, p.ConsecutiveTimeouts(), "counter resets at threshold")
	require.Eventually(t, func() bool { return heal.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Cycles are skipped while the heal runs, so no second trigger.
	for i := 0; i < 5; i++ {
		res = p.PollOnce(ctx)
		assert.True(t, res.Skipped)
	}

	close(heal.release)
	p.Wait()
	assert.Equal(t, int32(1), heal.calls.Load(), "heal invoked exactly once")
	assert.False(t, p.Healing())
}

func TestPoller_TimeoutCounterRules(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []outcome
		wantHeal bool
		wantLeft int
	}{
		{
			name:     "write failure leaves counter untouched",
			outcomes: []outcome{failure(KindTimeout), failure(KindTimeout), failure(KindWriteFailed), failure(KindTimeout)},
			wantHeal: true,
			wantLeft: 0,
		},
		{
			name:     "success resets",
			outcomes: []outcome{failure(KindTimeout), failure(KindTimeout), reply(motorStatus1726), failure(KindTimeout)},
			wantLeft: 1,
		},
		{
			name:     "no data resets",
			outcomes: []outcome{failure(KindTimeout), failure(KindTimeout), reply("NO DATA")},
			wantLeft: 0,
		},
		{
			name:     "not connected leaves counter untouched",
			outcomes: []outcome{failure(KindTimeout), failure(KindNotConnected)},
			wantLeft: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newScriptedExchanger()
			heal := newBlockingHeal()
			close(heal.release)
			p := NewPoller(exec, telemetry.NewRegister(), PollerOptions{Heal: heal.run})

			healed := false
			for _, out := range tt.outcomes {
				// Pin the source so every cycle uses the primary request.
				p.fallback.Store(false)
				exec.script(elm.DIDMotorStatus, out)
				if p.PollOnce(context.Background()).HealStarted {
					healed = true
				}
				exec.mu.Lock()
				delete(exec.scripts, elm.DIDMotorStatus)
				exec.mu.Unlock()
			}
			p.Wait()

			assert.Equal(t, tt.wantHeal, healed)
			assert.Equal(t, tt.wantLeft, p.ConsecutiveTimeouts())
		})
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, reply(motorStatus1726))
	p := NewPoller(exec, telemetry.NewRegister(), PollerOptions{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PollResult, 64)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	require.Eventually(t, func() bool { return len(out) >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPoller_RunStopsWhenNotConnected(t *testing.T) {
	exec := newScriptedExchanger()
	exec.script(elm.DIDMotorStatus, failure(KindNotConnected))
	p := NewPoller(exec, telemetry.NewRegister(), PollerOptions{Interval: time.Millisecond})

	err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}
