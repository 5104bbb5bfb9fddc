// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/Thermoquad/rumble/pkg/sound"
)

// DefaultSourceRate is the assumed sample rate of raw layer files.
const DefaultSourceRate = 44100

// SynthPrefix marks a synthesized source: "synth:<fundamental hz>".
const SynthPrefix = "synth:"

var ErrOddLength = errors.New("mixer: raw L16 file has an odd byte count")

// FileLoader loads layer sources as mono float samples at SampleRate.
//
// File sources are headerless signed 16-bit little-endian mono PCM at
// SourceRate and are resampled when the rates differ. "synth:" sources are
// generated.
type FileLoader struct {
	SampleRate int
	SourceRate int
}

var _ sound.SampleLoader = FileLoader{}

// Load implements sound.SampleLoader.
func (l FileLoader) Load(source string) ([]float32, error) {
	out := l.SampleRate
	if out <= 0 {
		out = DefaultSampleRate
	}

	if spec, ok := strings.CutPrefix(source, SynthPrefix); ok {
		hz, err := strconv.ParseFloat(spec, 64)
		if err != nil || hz <= 0 || math.IsInf(hz, 0) {
			return nil, fmt.Errorf("mixer: bad synth source %q", source)
		}
		return Synthesize(hz, out), nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	samples, err := DecodeL16(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, source)
	}

	in := l.SourceRate
	if in <= 0 {
		in = DefaultSourceRate
	}
	if in != out {
		if samples, err = Resample(samples, in, out); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}

	f := make([]float32, len(samples))
	for i, s := range samples {
		f[i] = float32(s)
	}
	return f, nil
}

// DecodeL16 converts s16le PCM to samples in [-1, 1).
func DecodeL16(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float64, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float64(s) / 32768.0
	}
	return out, nil
}

// Resample converts mono samples from one rate to another.
func Resample(samples []float64, from, to int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: resampler produced no output", ErrEmptySource)
	}
	return out, nil
}

// Synthesize builds a seamless loop of a harmonic-rich engine-like tone.
// The loop holds a whole number of periods, so the fundamental is nudged
// slightly to fit.
func Synthesize(fundamental float64, sampleRate int) []float32 {
	const harmonics = 8

	// An even cycle count keeps the half-rate pulse seamless too.
	cycles := 2 * math.Max(1, math.Ceil(fundamental/4))
	n := int(math.Round(cycles * float64(sampleRate) / fundamental))
	if n < 2 {
		n = 2
	}

	out := make([]float32, n)
	var peak float64
	raw := make([]float64, n)
	for i := range raw {
		phase := 2 * math.Pi * cycles * float64(i) / float64(n)
		var s float64
		for h := 1; h <= harmonics; h++ {
			s += math.Sin(float64(h)*phase) / float64(h)
		}
		// Firing pulse on every other cycle.
		s *= 0.8 + 0.2*math.Cos(phase/2)
		raw[i] = s
		peak = math.Max(peak, math.Abs(s))
	}
	for i, s := range raw {
		out[i] = float32(0.5 * s / peak)
	}
	return out
}
