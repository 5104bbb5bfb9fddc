// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/config"
	"github.com/Thermoquad/rumble/pkg/mixer"
	"github.com/Thermoquad/rumble/pkg/sound"
)

var (
	soundOut     string
	soundProfile string
	soundVolume  float64
	soundQuiet   bool
)

var soundCmd = &cobra.Command{
	Use:   "sound",
	Short: "Render the engine sound from live telemetry",
	Long: `Connect to the adapter, poll motor speed and render the blended engine
sound as raw PCM (mono, signed 16-bit little-endian).

The stream goes to --out, or to stdout for piping into a player:

  rumble sound --simulate | aplay -f S16_LE -c 1 -r 48000
  rumble sound --port /dev/ttyUSB0 --out drive.pcm

A status line is printed to stderr every second. The adapter is reconnected
automatically when the link drops; the last known speed keeps playing
meanwhile.`,
	RunE: runSound,
}

func init() {
	rootCmd.AddCommand(soundCmd)
	soundCmd.Flags().StringVarP(&soundOut, "out", "o", "-", "PCM output file, or - for stdout")
	soundCmd.Flags().StringVar(&soundProfile, "profile", "", "Engine profile YAML (default: built-in synthesized profile)")
	soundCmd.Flags().Float64Var(&soundVolume, "volume", -1, "Volume 0..1 (default from config)")
	soundCmd.Flags().BoolVarP(&soundQuiet, "quiet", "q", false, "Suppress the status line")
}

// loadProfile returns the profile named by path, or the built-in one.
func loadProfile(path string) (*sound.Profile, error) {
	if path == "" {
		return sound.DefaultProfile(), nil
	}
	return sound.LoadProfile(path)
}

// newEngine builds a mixer and an engine from configuration.
func newEngine(values sound.ValueSource) (*sound.Engine, *mixer.Mixer, error) {
	m := mixer.New(cfg.Output.SampleRate,
		mixer.WithBuffer(config.Ms(cfg.Output.BufferMs)),
		mixer.WithLogger(logger),
	)

	e, err := sound.NewEngine(sound.EngineOptions{
		Graph:       m,
		Loader:      mixer.FileLoader{SampleRate: cfg.Output.SampleRate, SourceRate: cfg.Sound.SourceRate},
		Values:      values,
		TickRate:    cfg.Sound.TickHz,
		Floor:       cfg.Sound.Floor,
		Ceiling:     cfg.Sound.Ceiling,
		RatePerUnit: cfg.Sound.RatePerUnit,
		RateMin:     cfg.Sound.RateMin,
		RateMax:     cfg.Sound.RateMax,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	e.SetVolume(cfg.Sound.Volume)
	return e, m, nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		return f, nil
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, errors.New("refusing to write PCM to a terminal; pipe into a player or use --out")
	}
	return nopCloser{os.Stdout}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func runSound(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	path := soundProfile
	if path == "" {
		path = cfg.Sound.Profile
	}
	profile, err := loadProfile(path)
	if err != nil {
		return err
	}
	if soundVolume >= 0 {
		cfg.Sound.Volume = min(soundVolume, 1)
	}

	out, err := openOutput(soundOut)
	if err != nil {
		return err
	}
	defer out.Close()

	l, err := openLink(ctx, nil)
	if err != nil {
		return err
	}
	defer l.Close()
	defer func() {
		if !soundQuiet {
			fmt.Fprintf(os.Stderr, "\n\n%s", l.session.Statistics())
		}
	}()

	engine, m, err := newEngine(l.session.Register())
	if err != nil {
		return err
	}
	if err := engine.Start(ctx, profile); err != nil {
		return err
	}
	defer func() { _ = engine.Stop() }()

	runErr := make(chan error, 1)
	go func() { runErr <- l.session.Run(ctx, l.endpoint) }()

	playErr := make(chan error, 1)
	w := bufio.NewWriterSize(out, 8192)
	go func() {
		err := m.Play(ctx, w)
		if flushErr := w.Flush(); err == nil || errors.Is(err, context.Canceled) {
			err = flushErr
		}
		playErr <- err
	}()

	fmt.Fprintf(os.Stderr, "Rumble - %s | profile %s (%d layers) | %d Hz\n",
		l.endpoint, profile.Name, len(profile.Layers), m.SampleRate())

	status := time.NewTicker(time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case err := <-playErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case res := <-l.session.Results():
			if res.HealStarted {
				logger.Warn("adapter unresponsive, re-initializing", "cycle", res.Cycle)
			}

		case <-status.C:
			if !soundQuiet {
				fmt.Fprintf(os.Stderr, "\r%s", statusLine(l.session, engine))
			}
		}
	}
}

// statusLine is the one-line summary printed while rendering.
func statusLine(s *adapter.Session, e *sound.Engine) string {
	f, _ := e.Last()
	stats := s.Stats()
	return fmt.Sprintf("%-12s %6d rpm  pitch %+6.0f¢  loud %.2f  tx %d  err %.1f/s  src %s   ",
		s.Phase().Kind, f.Value, f.PitchCents, f.Loudness,
		stats.TotalTransactions, stats.ErrorRate, s.Poller().Source())
}
