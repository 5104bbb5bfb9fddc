// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Engine defaults.
const (
	DefaultTickRate    = 60.0
	DefaultFloor       = 0.35
	DefaultCeiling     = 1.0
	DefaultRatePerUnit = 0.0004
	DefaultRateMin     = 0.5
	DefaultRateMax     = 2.0
	DefaultVolume      = 0.8
)

var (
	ErrEngineRunning = errors.New("sound: engine already running")
	ErrNilProfile    = errors.New("sound: nil profile")
)

// State is the engine lifecycle state.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// ValueSource supplies the latest telemetry value. *telemetry.Register
// implements it.
type ValueSource interface {
	Speed() int
}

// EngineOptions configures an Engine. Zero fields take the defaults.
type EngineOptions struct {
	Graph     RenderGraph
	Loader    SampleLoader
	Values    ValueSource
	Scheduler Scheduler

	TickRate    float64
	Floor       float64
	Ceiling     float64
	RatePerUnit float64
	RateMin     float64
	RateMax     float64

	// Volume is the initial user volume. Use SetVolume for zero.
	Volume float64

	Logger *slog.Logger
}

// LayerFrame is what one layer was given on a tick.
type LayerFrame struct {
	Source string
	Gain   float64
	Rate   float64
}

// Frame is the result of one tick.
type Frame struct {
	Value    int
	Loudness float64
	Layers   []LayerFrame

	// PitchCents is the gain-weighted pitch shift of the audible layers.
	// Display only.
	PitchCents float64

	At time.Time
}

// Engine crossfades a profile's layers from live telemetry.
type Engine struct {
	opts EngineOptions
	log  *slog.Logger

	mu      sync.Mutex
	state   State
	profile *Profile
	sources []Source
	cancel  context.CancelFunc
	done    <-chan struct{}

	volume atomic.Uint64
	last   atomic.Pointer[Frame]
}

// NewEngine returns a stopped engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Graph == nil || opts.Loader == nil || opts.Values == nil {
		return nil, errors.New("sound: engine needs a graph, a loader and a value source")
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	if opts.Floor == 0 && opts.Ceiling == 0 {
		opts.Floor, opts.Ceiling = DefaultFloor, DefaultCeiling
	}
	if opts.RatePerUnit == 0 {
		opts.RatePerUnit = DefaultRatePerUnit
	}
	if opts.RateMin <= 0 {
		opts.RateMin = DefaultRateMin
	}
	if opts.RateMax <= 0 {
		opts.RateMax = DefaultRateMax
	}
	if opts.RateMin > opts.RateMax {
		return nil, fmt.Errorf("sound: rate window [%g, %g] is empty", opts.RateMin, opts.RateMax)
	}
	if opts.Volume == 0 {
		opts.Volume = DefaultVolume
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{opts: opts, log: log}
	e.SetVolume(opts.Volume)
	return e, nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Profile returns the running profile, or nil when stopped.
func (e *Engine) Profile() *Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// SetVolume sets the user volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) {
	e.volume.Store(math.Float64bits(clamp(v, 0, 1)))
}

// Volume returns the user volume.
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.volume.Load())
}

// Last returns the most recent frame.
func (e *Engine) Last() (Frame, bool) {
	f := e.last.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Start loads the profile, attaches one silent looping source per layer,
// starts them together and begins ticking. ctx bounds the tick loop.
func (e *Engine) Start(ctx context.Context, p *Profile) error {
	if p == nil {
		return ErrNilProfile
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return ErrEngineRunning
	}
	e.state = StateStarting

	sources := make([]Source, 0, len(p.Layers))
	fail := func(err error) error {
		for _, src := range sources {
			src.Stop()
		}
		e.state = StateStopped
		return err
	}

	for _, l := range p.Layers {
		samples, err := e.opts.Loader.Load(l.Source)
		if err != nil {
			return fail(fmt.Errorf("load %s: %w", l.Source, err))
		}
		src, err := e.opts.Graph.NewLoopingSource(l.Source, samples)
		if err != nil {
			return fail(fmt.Errorf("attach %s: %w", l.Source, err))
		}
		src.SetGain(0)
		src.SetPlaybackRate(1)
		sources = append(sources, src)
	}

	for _, src := range sources {
		src.Start()
	}
	if err := e.opts.Graph.Start(); err != nil {
		return fail(fmt.Errorf("start graph: %w", err))
	}

	e.profile = p
	e.sources = sources

	tickCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateRunning
	interval := time.Duration(float64(time.Second) / e.opts.TickRate)
	e.done = e.opts.Scheduler.Every(tickCtx, interval, func(time.Time) { e.Tick() })

	e.log.Info("sound engine started",
		"profile", p.Name, "layers", len(p.Layers), "tick", interval)
	return nil
}

// Stop ends ticking and detaches every source. Stopping a stopped engine
// is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	// Tick takes the lock, so wait for the loop without holding it.
	cancel()
	if done != nil {
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, src := range e.sources {
		src.Stop()
	}
	err := e.opts.Graph.Stop()

	e.sources = nil
	e.profile = nil
	e.cancel = nil
	e.done = nil
	e.state = StateStopped

	e.log.Info("sound engine stopped")
	if err != nil {
		return fmt.Errorf("stop graph: %w", err)
	}
	return nil
}

// SwapProfile stops the engine and starts it again on p. Layers are never
// swapped individually.
func (e *Engine) SwapProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return ErrNilProfile
	}
	if err := e.Stop(); err != nil {
		return err
	}
	return e.Start(ctx, p)
}

// Tick reads the latest value, pushes gain and rate to every source and
// returns the frame. It does nothing unless the engine is running.
func (e *Engine) Tick() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return Frame{}
	}

	value := e.opts.Values.Speed()
	frame := e.compute(value)
	frame.At = time.Now()

	for i, src := range e.sources {
		src.SetGain(float32(frame.Layers[i].Gain))
		src.SetPlaybackRate(float32(frame.Layers[i].Rate))
	}

	e.last.Store(&frame)
	return frame
}

func (e *Engine) compute(value int) Frame {
	p := e.profile
	absV := math.Abs(float64(value))

	loudness := lerp(e.opts.Floor, e.opts.Ceiling, clamp(absV/p.MaxDomain, 0, 1))
	volume := e.Volume()

	frame := Frame{
		Value:    value,
		Loudness: loudness,
		Layers:   make([]LayerFrame, len(p.Layers)),
	}

	var weight, cents float64
	for i, l := range p.Layers {
		gain := l.Volume(absV) * loudness * volume
		rate := clamp(1+(absV-l.Center)*e.opts.RatePerUnit, e.opts.RateMin, e.opts.RateMax)
		frame.Layers[i] = LayerFrame{Source: l.Source, Gain: gain, Rate: rate}

		if gain > 0 {
			weight += gain
			cents += gain * 1200 * math.Log2(rate)
		}
	}
	if weight > 0 {
		frame.PitchCents = cents / weight
	}

	return frame
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
