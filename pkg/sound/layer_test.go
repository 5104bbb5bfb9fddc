// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sound

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeEqualPowerHandoff(t *testing.T) {
	// A's fade-out spans exactly B's fade-in.
	a := Layer{Source: "a", Center: 2000, Min: 1250, Max: 2500}
	b := Layer{Source: "b", Center: 2500, Min: 2000, Max: 3250}

	for v := 2000.0; v <= 2500; v += 25 {
		va, vb := a.Volume(v), b.Volume(v)
		assert.InDelta(t, 1.0, va*va+vb*vb, 1e-9, "value %g", v)
	}
}

func TestVolumeOverlapMidpointIsBalanced(t *testing.T) {
	a := Layer{Source: "a", Center: 2000, Min: 1250, Max: 2750}
	b := Layer{Source: "b", Center: 2500, Min: 1750, Max: 3250}

	va, vb := a.Volume(2250), b.Volume(2250)
	assert.InDelta(t, va, vb, 1e-12)
	assert.InDelta(t, math.Cos(math.Pi/6), va, 1e-12)
}

func TestVolumeCurveShape(t *testing.T) {
	l := Layer{Source: "x", Center: 3000, Min: 1000, Max: 6000}

	assert.Equal(t, 0.0, l.Volume(999))
	assert.Equal(t, 0.0, l.Volume(6001))
	assert.Equal(t, 0.0, l.Volume(1000))
	assert.Equal(t, 1.0, l.Volume(3000))
	assert.InDelta(t, 0.0, l.Volume(6000), 1e-12)

	prev := -1.0
	for v := 1000.0; v <= 3000; v += 10 {
		got := l.Volume(v)
		assert.GreaterOrEqual(t, got, prev, "fade-in not monotonic at %g", v)
		prev = got
	}
	prev = 2.0
	for v := 3000.0; v <= 6000; v += 10 {
		got := l.Volume(v)
		assert.LessOrEqual(t, got, prev, "fade-out not monotonic at %g", v)
		prev = got
	}
}

func TestVolumeUsesMagnitude(t *testing.T) {
	l := Layer{Source: "x", Center: 3000, Min: 1000, Max: 6000}

	for _, v := range []float64{1500, 3000, 4200} {
		assert.Equal(t, l.Volume(v), l.Volume(-v))
	}
}

func TestVolumeZeroWidthFades(t *testing.T) {
	tests := []struct {
		name  string
		layer Layer
		value float64
		want  float64
	}{
		{"point layer", Layer{Center: 500, Min: 500, Max: 500}, 500, 1},
		{"no fade-in", Layer{Center: 0, Min: 0, Max: 1000}, 0, 1},
		{"no fade-out", Layer{Center: 1000, Min: 0, Max: 1000}, 1000, 1},
		{"midway in", Layer{Center: 1000, Min: 0, Max: 1000}, 500, math.Sin(math.Pi / 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.layer.Volume(tt.value), 1e-12)
		})
	}
}

func TestLayerValidate(t *testing.T) {
	require.NoError(t, Layer{Source: "a", Center: 1, Min: 0, Max: 2}.Validate())

	assert.ErrorIs(t, Layer{Center: 1, Min: 0, Max: 2}.Validate(), ErrInvalidLayer)
	assert.ErrorIs(t, Layer{Source: "a", Center: 3, Min: 0, Max: 2}.Validate(), ErrInvalidLayer)
	assert.ErrorIs(t, Layer{Source: "a", Center: 1, Min: 2, Max: 3}.Validate(), ErrInvalidLayer)
	assert.ErrorIs(t, Layer{Source: "a", Center: math.NaN(), Min: 0, Max: 3}.Validate(), ErrInvalidLayer)
}
