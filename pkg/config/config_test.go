// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rumble.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
adapter:
  header: "7E0"
  primary_offset: 2
poll:
  interval_ms: 250
sound:
  profile: profiles/v8.yaml
  volume: 0.5
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "7E0", cfg.Adapter.Header)
	assert.Equal(t, 2, cfg.Adapter.PrimaryOffset)
	assert.Equal(t, "6", cfg.Adapter.Protocol, "default kept")
	assert.Equal(t, 250*time.Millisecond, Ms(cfg.Poll.IntervalMs))
	assert.Equal(t, 10, cfg.Poll.SecondaryEvery, "default kept")
	assert.Equal(t, "profiles/v8.yaml", cfg.Sound.Profile)
	assert.Equal(t, 0.5, cfg.Sound.Volume)
	assert.Equal(t, 0.35, cfg.Sound.Floor, "default kept")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("poll:\n  intervl_ms: 5\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"protocol", func(c *Config) { c.Adapter.Protocol = "12" }, "adapter.protocol"},
		{"header", func(c *Config) { c.Adapter.Header = "7G4" }, "adapter.header"},
		{"header length", func(c *Config) { c.Adapter.Header = "7E40" }, "adapter.header"},
		{"settle", func(c *Config) { c.Adapter.SettleMs = -1 }, "settle"},
		{"offset", func(c *Config) { c.Adapter.PrimaryOffset = -1 }, "primary_offset"},
		{"huge offset", func(c *Config) { c.Adapter.PrimaryOffset = math.MaxInt }, "primary_offset"},
		{"offset past bound", func(c *Config) { c.Adapter.PrimaryOffset = MaxPrimaryOffset + 1 }, "primary_offset"},
		{"interval", func(c *Config) { c.Poll.IntervalMs = 0 }, "poll.interval_ms"},
		{"heal", func(c *Config) { c.Poll.HealThreshold = 0 }, "heal_threshold"},
		{"backoff", func(c *Config) { c.Reconnect.MaxMs = 10 }, "reconnect"},
		{"jitter", func(c *Config) { c.Reconnect.Jitter = 1 }, "jitter"},
		{"volume", func(c *Config) { c.Sound.Volume = 1.5 }, "sound.volume"},
		{"tick", func(c *Config) { c.Sound.TickHz = 0 }, "tick_hz"},
		{"floor", func(c *Config) { c.Sound.Floor = 0.9; c.Sound.Ceiling = 0.5 }, "floor"},
		{"rate window", func(c *Config) { c.Sound.RateMin = 3 }, "rate_min"},
		{"sample rate", func(c *Config) { c.Output.SampleRate = 100 }, "output.sample_rate"},
		{"buffer", func(c *Config) { c.Output.BufferMs = 0 }, "buffer_ms"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAcceptsLongHeaders(t *testing.T) {
	for _, h := range []string{"7e4", "18DA10", "18DA10F1"} {
		cfg := Default()
		cfg.Adapter.Header = h
		assert.NoError(t, Validate(cfg), h)
	}
}
