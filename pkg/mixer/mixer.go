// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mixer is a software render graph for the sound engine.
//
// Voices loop their samples at a variable rate with linear interpolation.
// Gain and rate are written lock-free by the engine tick and picked up by
// the render loop once per buffer; gain changes are ramped across the
// buffer. Output is mono signed 16-bit little-endian PCM.
package mixer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/rumble/pkg/sound"
)

// Mixer defaults.
const (
	DefaultSampleRate = 48000
	DefaultBuffer     = 20 * time.Millisecond
)

var ErrEmptySource = errors.New("mixer: source has no samples")

// Option configures a Mixer.
type Option func(*Mixer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBuffer sets how much audio Play renders per write.
func WithBuffer(d time.Duration) Option {
	return func(m *Mixer) {
		if d > 0 {
			m.buffer = d
		}
	}
}

// Mixer sums looping voices into PCM. It implements sound.RenderGraph.
type Mixer struct {
	rate   int
	buffer time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	voices  []*Voice
	running atomic.Bool

	// renderMu serializes Read; voices keep play state between buffers.
	renderMu sync.Mutex
	scratch  []float32
}

var _ sound.RenderGraph = (*Mixer)(nil)

// New returns a stopped mixer at sampleRate. A zero rate means
// DefaultSampleRate.
func New(sampleRate int, opts ...Option) *Mixer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	m := &Mixer{
		rate:   sampleRate,
		buffer: DefaultBuffer,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SampleRate returns the output sample rate.
func (m *Mixer) SampleRate() int { return m.rate }

// NewLoopingSource attaches a silent, stopped voice.
func (m *Mixer) NewLoopingSource(label string, samples []float32) (sound.Source, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, label)
	}

	v := &Voice{
		label:   label,
		samples: samples,
		gain:    newAtomicFloat32(0),
		rate:    newAtomicFloat32(1),
		mixer:   m,
	}

	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()

	m.log.Debug("voice attached", "label", label, "samples", len(samples))
	return v, nil
}

// Voices returns the attached voices.
func (m *Mixer) Voices() []*Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.voices)
}

func (m *Mixer) detach(v *Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = slices.DeleteFunc(m.voices, func(x *Voice) bool { return x == v })
}

// Start begins rendering. Before Start, Read produces silence.
func (m *Mixer) Start() error {
	m.running.Store(true)
	return nil
}

// Stop silences the output. Attached voices stay attached.
func (m *Mixer) Stop() error {
	m.running.Store(false)
	return nil
}

// Running reports whether the mixer is rendering.
func (m *Mixer) Running() bool { return m.running.Load() }

// Read renders len(p)/2 samples of s16le PCM into p. It never blocks and
// never returns an error.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if frames == 0 {
		return 0, nil
	}

	m.renderMu.Lock()
	defer m.renderMu.Unlock()

	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	out := m.scratch[:frames]
	m.render(out)

	for i, s := range out {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(toInt16(s)))
	}
	return frames * 2, nil
}

func (m *Mixer) render(out []float32) {
	clear(out)
	if !m.running.Load() {
		return
	}

	for _, v := range m.Voices() {
		v.render(out)
	}
}

// Play writes rendered PCM to w in real time, one buffer per buffer
// duration, until ctx is done or a write fails.
func (m *Mixer) Play(ctx context.Context, w io.Writer) error {
	frames := int(float64(m.rate) * m.buffer.Seconds())
	if frames < 1 {
		frames = 1
	}
	buf := make([]byte, frames*2)

	ticker := time.NewTicker(m.buffer)
	defer ticker.Stop()

	for {
		n, _ := m.Read(buf)
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write pcm: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	default:
		return int16(s * math.MaxInt16)
	}
}

// Voice is one looping source in a Mixer.
type Voice struct {
	label   string
	samples []float32

	gain    *atomicFloat32
	rate    *atomicFloat32
	playing atomic.Bool
	starts  atomic.Int32
	mixer   *Mixer

	// Render state, owned by Mixer.Read.
	pos     float64
	current float32
}

var _ sound.Source = (*Voice)(nil)

func (v *Voice) Label() string { return v.label }

// Starts returns how many times Start was called.
func (v *Voice) Starts() int { return int(v.starts.Load()) }

func (v *Voice) Playing() bool { return v.playing.Load() }

func (v *Voice) Gain() float32 { return v.gain.Load() }

func (v *Voice) Rate() float32 { return v.rate.Load() }

func (v *Voice) Start() {
	v.starts.Add(1)
	v.playing.Store(true)
}

// Stop silences the voice and detaches it from its mixer.
func (v *Voice) Stop() {
	v.playing.Store(false)
	v.mixer.detach(v)
}

// SetGain sets the target gain. Negative gains are treated as zero.
func (v *Voice) SetGain(gain float32) {
	v.gain.Store(max(gain, 0))
}

// SetPlaybackRate sets the playback rate. Non-positive rates are ignored.
func (v *Voice) SetPlaybackRate(rate float32) {
	if rate > 0 {
		v.rate.Store(rate)
	}
}

func (v *Voice) render(out []float32) {
	if !v.playing.Load() {
		v.current = 0
		return
	}

	target := v.gain.Load()
	step := (target - v.current) / float32(len(out))
	rate := float64(v.rate.Load())
	n := len(v.samples)
	length := float64(n)

	g := v.current
	for i := range out {
		g += step
		idx := int(v.pos)
		frac := float32(v.pos - float64(idx))
		a := v.samples[idx]
		b := v.samples[(idx+1)%n]
		out[i] += (a + (b-a)*frac) * g

		v.pos += rate
		if v.pos >= length {
			v.pos = math.Mod(v.pos, length)
		}
	}
	v.current = target
}
