// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads rumble's YAML configuration.
//
// Durations are integer milliseconds in fields ending in _ms. Fields left
// out of the file keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Adapter   AdapterConfig   `yaml:"adapter"`
	Poll      PollConfig      `yaml:"poll"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Sound     SoundConfig     `yaml:"sound"`
	Output    OutputConfig    `yaml:"output"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// ---- ADAPTER ----

type AdapterConfig struct {
	Protocol      string `yaml:"protocol"`
	Header        string `yaml:"header"`
	SettleMs      int    `yaml:"settle_ms"`
	ResetSettleMs int    `yaml:"reset_settle_ms"`

	// PrimaryOffset is the byte offset of the motor speed after the
	// 62 01 01 header. It differs between adapter firmwares.
	PrimaryOffset int `yaml:"primary_offset"`

	// Capture appends every transaction to this CBOR file when set.
	Capture string `yaml:"capture"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs     int `yaml:"interval_ms"`
	SecondaryEvery int `yaml:"secondary_every"`
	HealThreshold  int `yaml:"heal_threshold"`
}

// ---- RECONNECT ----

type ReconnectConfig struct {
	InitialMs int     `yaml:"initial_ms"`
	MaxMs     int     `yaml:"max_ms"`
	Jitter    float64 `yaml:"jitter"`
}

// ---- SOUND ----

type SoundConfig struct {
	// Profile is a YAML profile path. Empty selects the built-in
	// synthesized profile.
	Profile string `yaml:"profile"`

	Volume      float64 `yaml:"volume"`
	TickHz      float64 `yaml:"tick_hz"`
	Floor       float64 `yaml:"floor"`
	Ceiling     float64 `yaml:"ceiling"`
	RatePerUnit float64 `yaml:"rate_per_unit"`
	RateMin     float64 `yaml:"rate_min"`
	RateMax     float64 `yaml:"rate_max"`

	// SourceRate is the sample rate of raw layer files.
	SourceRate int `yaml:"source_rate"`
}

// ---- OUTPUT ----

type OutputConfig struct {
	SampleRate int `yaml:"sample_rate"`
	BufferMs   int `yaml:"buffer_ms"`
}

// ---- STORE ----

type StoreConfig struct {
	// Dir is the badger directory. Empty keeps state in memory only.
	Dir string `yaml:"dir"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Protocol:      "6",
			Header:        "7E4",
			SettleMs:      100,
			ResetSettleMs: 1000,
		},
		Poll: PollConfig{
			IntervalMs:     100,
			SecondaryEvery: 10,
			HealThreshold:  3,
		},
		Reconnect: ReconnectConfig{
			InitialMs: 1000,
			MaxMs:     30000,
			Jitter:    0.25,
		},
		Sound: SoundConfig{
			Volume:      0.8,
			TickHz:      60,
			Floor:       0.35,
			Ceiling:     1.0,
			RatePerUnit: 0.0004,
			RateMin:     0.5,
			RateMax:     2.0,
			SourceRate:  44100,
		},
		Output: OutputConfig{
			SampleRate: 48000,
			BufferMs:   20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// The result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Ms converts a millisecond field to a duration.
func Ms(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
