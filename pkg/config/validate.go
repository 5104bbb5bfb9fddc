// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// MaxPrimaryOffset bounds adapter.primary_offset to the payload of a
// multi-frame ISO-TP response.
const MaxPrimaryOffset = 64

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	a := cfg.Adapter
	if a.Protocol == "" || len(a.Protocol) > 1 {
		return fmt.Errorf("adapter.protocol %q must be a single protocol digit", a.Protocol)
	}
	if !isHex(a.Header) || (len(a.Header) != 3 && len(a.Header) != 6 && len(a.Header) != 8) {
		return fmt.Errorf("adapter.header %q must be 3, 6 or 8 hex digits", a.Header)
	}
	if a.SettleMs < 0 || a.ResetSettleMs < 0 {
		return fmt.Errorf("adapter settle delays must not be negative")
	}
	if a.PrimaryOffset < 0 || a.PrimaryOffset > MaxPrimaryOffset {
		return fmt.Errorf("adapter.primary_offset %d must be within 0..%d", a.PrimaryOffset, MaxPrimaryOffset)
	}

	p := cfg.Poll
	if p.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be > 0")
	}
	if p.SecondaryEvery < 0 {
		return fmt.Errorf("poll.secondary_every must not be negative")
	}
	if p.HealThreshold <= 0 {
		return fmt.Errorf("poll.heal_threshold must be > 0")
	}

	r := cfg.Reconnect
	if r.InitialMs <= 0 || r.MaxMs < r.InitialMs {
		return fmt.Errorf("reconnect needs 0 < initial_ms <= max_ms")
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		return fmt.Errorf("reconnect.jitter must be in [0, 1)")
	}

	s := cfg.Sound
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("sound.volume must be in [0, 1]")
	}
	if s.TickHz <= 0 || s.TickHz > 1000 {
		return fmt.Errorf("sound.tick_hz must be in (0, 1000]")
	}
	if s.Floor < 0 || s.Ceiling > 1 || s.Floor > s.Ceiling {
		return fmt.Errorf("sound needs 0 <= floor <= ceiling <= 1")
	}
	if s.RatePerUnit < 0 {
		return fmt.Errorf("sound.rate_per_unit must not be negative")
	}
	if s.RateMin <= 0 || s.RateMax < s.RateMin {
		return fmt.Errorf("sound needs 0 < rate_min <= rate_max")
	}
	if s.SourceRate <= 0 {
		return fmt.Errorf("sound.source_rate must be > 0")
	}

	o := cfg.Output
	if o.SampleRate < 8000 || o.SampleRate > 192000 {
		return fmt.Errorf("output.sample_rate must be in [8000, 192000]")
	}
	if o.BufferMs <= 0 {
		return fmt.Errorf("output.buffer_ms must be > 0")
	}

	level := strings.ToLower(cfg.Log.Level)
	valid := false
	for _, l := range logLevels {
		if level == l {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("log.level %q must be one of %s", cfg.Log.Level, strings.Join(logLevels, ", "))
	}

	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range strings.ToUpper(s) {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
