// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sound

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile errors.
var (
	ErrInvalidLayer = errors.New("sound: invalid layer")
	ErrNoLayers     = errors.New("sound: profile has no layers")
	ErrNoOverlap    = errors.New("sound: adjacent layers do not overlap")
	ErrCoverageGap  = errors.New("sound: value not covered by any layer")
	ErrDomain       = errors.New("sound: invalid domain")
)

// silence is the gain below which a layer counts as inaudible. The fade-out
// curve ends at cos(pi/2), which is not exactly zero in floating point.
const silence = 1e-9

// Profile is a validated, center-ordered set of layers.
type Profile struct {
	Name      string
	MinDomain float64
	MaxDomain float64
	Layers    []Layer
}

// NewProfile sorts layers by center and validates them. Every value in
// [0, maxDomain] must be audible on at least one layer and
// neighbouring layers must overlap.
func NewProfile(name string, minDomain, maxDomain float64, layers []Layer) (*Profile, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	if minDomain < 0 || maxDomain <= minDomain {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrDomain, minDomain, maxDomain)
	}

	sorted := slices.Clone(layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Center < sorted[j].Center
	})

	for _, l := range sorted {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if prev.Max < next.Min {
			return nil, fmt.Errorf("%w: %s ends at %g, %s starts at %g",
				ErrNoOverlap, prev.Source, prev.Max, next.Source, next.Min)
		}
	}

	p := &Profile{
		Name:      name,
		MinDomain: minDomain,
		MaxDomain: maxDomain,
		Layers:    sorted,
	}
	if v, ok := p.firstGap(); ok {
		return nil, fmt.Errorf("%w: %g", ErrCoverageGap, v)
	}
	return p, nil
}

// firstGap returns the lowest inaudible value in [0, MaxDomain]. Coverage
// always starts at zero, whatever MinDomain says: a stationary motor must
// still be audible.
//
// Between two consecutive breakpoints every layer is either silent
// throughout or audible throughout, so checking the breakpoints and the
// midpoints between them covers the whole domain.
func (p *Profile) firstGap() (float64, bool) {
	points := []float64{0, p.MaxDomain}
	for _, l := range p.Layers {
		for _, v := range []float64{l.Min, l.Center, l.Max} {
			if v > 0 && v < p.MaxDomain {
				points = append(points, v)
			}
		}
	}
	slices.Sort(points)
	points = slices.Compact(points)

	for i, v := range points {
		if !p.audible(v) {
			return v, true
		}
		if i+1 < len(points) {
			mid := v + (points[i+1]-v)/2
			if !p.audible(mid) {
				return mid, true
			}
		}
	}
	return 0, false
}

func (p *Profile) audible(v float64) bool {
	for _, l := range p.Layers {
		if l.Volume(v) > silence {
			return true
		}
	}
	return false
}

// Volumes returns every layer's volume at value, in layer order.
func (p *Profile) Volumes(value float64) []float64 {
	out := make([]float64, len(p.Layers))
	for i, l := range p.Layers {
		out[i] = l.Volume(value)
	}
	return out
}

type profileFile struct {
	Name      string  `yaml:"name"`
	MinDomain float64 `yaml:"min_domain"`
	MaxDomain float64 `yaml:"max_domain"`
	Layers    []Layer `yaml:"layers"`
}

// LoadProfile reads a YAML profile. Relative layer sources are resolved
// against the profile's directory; sources with a scheme prefix such as
// "synth:" are left alone.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := ParseProfile(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes a YAML profile, resolving sources against dir.
func ParseProfile(data []byte, dir string) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f profileFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	for i := range f.Layers {
		src := f.Layers[i].Source
		if src == "" || strings.Contains(src, ":") || filepath.IsAbs(src) {
			continue
		}
		f.Layers[i].Source = filepath.Join(dir, src)
	}

	return NewProfile(f.Name, f.MinDomain, f.MaxDomain, f.Layers)
}

// DefaultProfile is a synthesized four-layer profile for motors up to
// 8000 rpm. It needs no sample files.
func DefaultProfile() *Profile {
	p, err := NewProfile("synth", 0, 8000, []Layer{
		{Source: "synth:28", Center: 0, Min: 0, Max: 2200},
		{Source: "synth:55", Center: 1750, Min: 600, Max: 3800},
		{Source: "synth:95", Center: 3500, Min: 2000, Max: 6000},
		{Source: "synth:150", Center: 6500, Min: 4000, Max: 8500},
	})
	if err != nil {
		panic(err)
	}
	return p
}
