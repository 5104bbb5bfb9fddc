// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixer

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeL16(t *testing.T, samples []int16) string {
	t.Helper()
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	path := filepath.Join(t.TempDir(), "layer.raw")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDecodeL16(t *testing.T) {
	got, err := DecodeL16([]byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80, 0xFF, 0x7F})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, -1, 32767.0 / 32768.0}, got)

	_, err = DecodeL16([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrOddLength)
}

func TestFileLoaderSameRate(t *testing.T) {
	path := writeL16(t, []int16{0, 16384, -16384, 0})

	got, err := FileLoader{SampleRate: 44100, SourceRate: 44100}.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, -0.5, 0}, got)
}

func TestFileLoaderResamples(t *testing.T) {
	// One second of 440 Hz at 22050 Hz.
	in := make([]int16, 22050)
	for i := range in {
		in[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/22050))
	}
	path := writeL16(t, in)

	got, err := FileLoader{SampleRate: 44100, SourceRate: 22050}.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	// Roughly twice as long; the resampler holds back its filter delay.
	assert.Greater(t, len(got), len(in))
	for _, s := range got {
		assert.LessOrEqual(t, math.Abs(float64(s)), 0.5)
	}
}

func TestFileLoaderErrors(t *testing.T) {
	l := FileLoader{}

	_, err := l.Load(filepath.Join(t.TempDir(), "missing.raw"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(t.TempDir(), "empty.raw")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = l.Load(empty)
	assert.ErrorIs(t, err, ErrEmptySource)

	for _, bad := range []string{"synth:", "synth:abc", "synth:-5", "synth:0"} {
		_, err = l.Load(bad)
		assert.Error(t, err, bad)
	}
}

func TestSynthesizeLoopsSeamlessly(t *testing.T) {
	for _, hz := range []float64{28, 55, 95, 150} {
		s := Synthesize(hz, 48000)
		require.NotEmpty(t, s)

		var peak float32
		for _, v := range s {
			peak = max(peak, float32(math.Abs(float64(v))))
		}
		assert.InDelta(t, 0.5, peak, 1e-6, "%g Hz", hz)

		// The wrap from the last sample to the first is no bigger than
		// the largest step inside the loop.
		var step float64
		for i := 1; i < len(s); i++ {
			step = math.Max(step, math.Abs(float64(s[i]-s[i-1])))
		}
		assert.LessOrEqual(t, math.Abs(float64(s[0]-s[len(s)-1])), step+1e-6, "%g Hz", hz)
	}
}

func TestFileLoaderSynth(t *testing.T) {
	got, err := FileLoader{SampleRate: 8000}.Load("synth:40")
	require.NoError(t, err)
	assert.Equal(t, Synthesize(40, 8000), got)
}
