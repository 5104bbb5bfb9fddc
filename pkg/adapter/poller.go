// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/rumble/pkg/elm"
	"github.com/Thermoquad/rumble/pkg/telemetry"
)

// Polling defaults.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultSecondaryEvery = 10
	DefaultHealThreshold  = 3
)

// Exchanger runs a command and decodes its response. *Queue implements it.
type Exchanger interface {
	Exchange(ctx context.Context, cmd elm.Command, decode Decoder) (string, error)
}

// SpeedSource is the request currently used for motor speed.
type SpeedSource uint8

const (
	SourcePrimary SpeedSource = iota
	SourceFallback
)

func (s SpeedSource) String() string {
	if s == SourceFallback {
		return "fallback (" + elm.PIDEngineRPM + ")"
	}
	return "primary (" + elm.DIDMotorStatus + ")"
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval       time.Duration
	SecondaryEvery int
	HealThreshold  int
	Layout         elm.Layout

	// Heal re-initializes the adapter. It runs on its own goroutine.
	Heal func(ctx context.Context) error

	Stats  *Statistics
	Logger *slog.Logger
}

// PollResult is the outcome of one poll cycle.
type PollResult struct {
	Cycle  uint64
	At     time.Time
	Source SpeedSource

	Speed   int
	SpeedOK bool

	VehicleSpeed int
	VehicleOK    bool

	// Err is the speed request's failure, if any.
	Err error

	// Skipped is set when the cycle was skipped for a running heal.
	Skipped bool

	// HealStarted is set when this cycle triggered a heal.
	HealStarted bool
}

// Poller periodically requests telemetry and writes it to a Register.
//
// Failures never clear the register. Consecutive timeouts are counted and
// at the threshold the adapter is re-initialized once, asynchronously,
// without tearing down the link.
type Poller struct {
	exec Exchanger
	reg  *telemetry.Register
	opts PollerOptions
	log  *slog.Logger

	cycle    uint64
	fallback atomic.Bool
	timeouts atomic.Int32
	healing  atomic.Bool
	healWG   sync.WaitGroup
}

// NewPoller creates a poller writing to reg.
func NewPoller(exec Exchanger, reg *telemetry.Register, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.SecondaryEvery <= 0 {
		opts.SecondaryEvery = DefaultSecondaryEvery
	}
	if opts.HealThreshold <= 0 {
		opts.HealThreshold = DefaultHealThreshold
	}
	if opts.Layout.Header == nil {
		opts.Layout = elm.DefaultPrimaryLayout
	}
	if opts.Stats == nil {
		opts.Stats = NewStatistics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		exec: exec,
		reg:  reg,
		opts: opts,
		log:  opts.Logger,
	}
}

// ConsecutiveTimeouts returns the current timeout streak.
func (p *Poller) ConsecutiveTimeouts() int {
	return int(p.timeouts.Load())
}

// Source returns the request the next cycle will use for speed.
func (p *Poller) Source() SpeedSource {
	if p.fallback.Load() {
		return SourceFallback
	}
	return SourcePrimary
}

// Healing reports whether a re-initialization is running.
func (p *Poller) Healing() bool {
	return p.healing.Load()
}

// Wait blocks until any running heal has finished.
func (p *Poller) Wait() {
	p.healWG.Wait()
}

// PollOnce performs exactly one poll cycle.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	p.cycle++
	res := PollResult{Cycle: p.cycle, At: time.Now(), Source: p.Source()}

	if p.healing.Load() {
		res.Skipped = true
		return res
	}

	var speed int
	var err error
	if res.Source == SourceFallback {
		_, err = p.exec.Exchange(ctx, elm.FallbackSpeed(), decodeInto(&speed, elm.ParseLegacyRPM))
	} else {
		layout := p.opts.Layout
		_, err = p.exec.Exchange(ctx, elm.PrimaryTelemetry(), decodeInto(&speed, func(raw string) (int, bool) {
			return elm.ParsePrimaryValue(raw, layout)
		}))
	}

	kind, _ := KindOf(err)
	switch kind {
	case KindNone:
		p.reg.UpdateSpeed(speed)
		res.Speed, res.SpeedOK = speed, true
	case KindParseFailure, KindNoData:
		p.switchSource(res.Source, kind)
	}
	res.Err = err
	res.HealStarted = p.countOutcome(ctx, kind)

	if errors.Is(err, ErrNotConnected) || p.cycle%uint64(p.opts.SecondaryEvery) != 0 || ctx.Err() != nil {
		return res
	}

	var kph int
	_, err = p.exec.Exchange(ctx, elm.SecondaryTelemetry(), decodeInto(&kph, elm.ParseSecondaryValue))
	kind, _ = KindOf(err)
	if kind == KindNone {
		p.reg.UpdateVehicleSpeed(kph)
		res.VehicleSpeed, res.VehicleOK = kph, true
	}
	if p.countOutcome(ctx, kind) {
		res.HealStarted = true
	}
	return res
}

// Run polls at a fixed interval until ctx is done or the link is lost.
// Results are offered to out without blocking; out may be nil.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		res := p.PollOnce(ctx)
		if out != nil {
			select {
			case out <- res:
			default:
			}
		}
		if errors.Is(res.Err, ErrNotConnected) {
			return res.Err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// switchSource alternates between the primary DID and the legacy PID when
// the current one yields nothing usable.
func (p *Poller) switchSource(current SpeedSource, kind ErrorKind) {
	next := current == SourcePrimary
	if p.fallback.Swap(next) != next {
		p.log.Info("switching speed request", "from", current, "to", p.Source(), "reason", kind)
	}
}

// countOutcome maintains the timeout streak and starts a heal at the
// threshold. It reports whether a heal was started.
func (p *Poller) countOutcome(ctx context.Context, kind ErrorKind) bool {
	switch kind {
	case KindTimeout:
		if int(p.timeouts.Add(1)) < p.opts.HealThreshold {
			return false
		}
		p.timeouts.Store(0)
		return p.startHeal(ctx)
	case KindNone, KindParseFailure, KindNoData:
		p.timeouts.Store(0)
	}
	return false
}

func (p *Poller) startHeal(ctx context.Context) bool {
	if p.opts.Heal == nil {
		return false
	}
	if !p.healing.CompareAndSwap(false, true) {
		p.log.Debug("heal already running")
		return false
	}

	p.opts.Stats.RecordHeal()
	p.log.Warn("adapter unresponsive, re-initializing", "threshold", p.opts.HealThreshold)

	p.healWG.Add(1)
	go func() {
		defer p.healWG.Done()
		defer p.healing.Store(false)
		if err := p.opts.Heal(ctx); err != nil {
			p.log.Error("re-initialization failed", "error", err)
		}
	}()
	return true
}

// decodeInto builds a Decoder that stores a parsed value in dst. Explicit
// adapter error text is NoData; anything else without the expected header
// is a ParseFailure.
func decodeInto(dst *int, parse func(string) (int, bool)) Decoder {
	return func(response string) *Error {
		if v, ok := parse(response); ok {
			*dst = v
			return nil
		}
		if elm.IsNoData(response) {
			return newError(KindNoData, "", nil)
		}
		return newError(KindParseFailure, "", nil)
	}
}
