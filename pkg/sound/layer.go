// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sound turns live motor speed into a blended engine sound.
//
// A Profile is a set of looping recordings (layers), each valid around the
// speed it was recorded at. The Engine keeps every layer playing for the
// whole session and only moves gain and playback rate, so blends never
// click.
package sound

import (
	"fmt"
	"math"
)

// Layer is one recording and the speed window it covers.
type Layer struct {
	Source string  `yaml:"source"`
	Center float64 `yaml:"center"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

func (l Layer) String() string {
	return fmt.Sprintf("%s [%g..%g..%g]", l.Source, l.Min, l.Center, l.Max)
}

// Validate checks that Min <= Center <= Max.
func (l Layer) Validate() error {
	if l.Source == "" {
		return fmt.Errorf("%w: layer at %g has no source", ErrInvalidLayer, l.Center)
	}
	if math.IsNaN(l.Min) || math.IsNaN(l.Center) || math.IsNaN(l.Max) {
		return fmt.Errorf("%w: %s has NaN bounds", ErrInvalidLayer, l.Source)
	}
	if l.Min > l.Center || l.Center > l.Max {
		return fmt.Errorf("%w: %s needs min <= center <= max", ErrInvalidLayer, l)
	}
	return nil
}

// Volume returns the layer's equal-power gain in [0, 1] at value. The
// magnitude of value is used, so regeneration sounds like drive.
func (l Layer) Volume(value float64) float64 {
	v := math.Abs(value)

	switch {
	case v < l.Min || v > l.Max:
		return 0
	case v == l.Center:
		return 1
	case v < l.Center:
		width := l.Center - l.Min
		if width == 0 {
			return 1
		}
		t := (v - l.Min) / width
		return math.Sin(t * math.Pi / 2)
	default:
		width := l.Max - l.Center
		if width == 0 {
			return 1
		}
		t := (v - l.Center) / width
		return math.Cos(t * math.Pi / 2)
	}
}
