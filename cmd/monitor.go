// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/adapter"
)

var monitorProfile string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching the adapter and the sound engine",
	Long: `Monitor the adapter session and the crossfade engine in a terminal UI.

Features:
  - Connection phase and automatic reconnection
  - Live motor speed, vehicle speed and telemetry age
  - Per-layer gain and playback rate bars with the blended pitch
  - Transaction statistics and the recent transaction history
  - Raw command input (Tab to focus, Enter to send)

The engine runs without audio output; use 'rumble sound' to hear it.
Logs are discarded unless --log-file is given, so they don't tear the screen.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorProfile, "profile", "", "Engine profile YAML (default: built-in synthesized profile)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cfg.Log.File == "" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		slog.SetDefault(logger)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	path := monitorProfile
	if path == "" {
		path = cfg.Sound.Profile
	}
	profile, err := loadProfile(path)
	if err != nil {
		return err
	}

	l, err := openLink(ctx, nil)
	if err != nil {
		return err
	}
	defer l.Close()

	engine, _, err := newEngine(l.session.Register())
	if err != nil {
		return err
	}
	if err := engine.Start(ctx, profile); err != nil {
		return err
	}
	defer func() { _ = engine.Stop() }()

	m := initialMonitorModel(ctx, l.session, engine, l.endpoint.String())
	p := tea.NewProgram(m, tea.WithAltScreen())

	l.session.OnPhaseChange(func(ph adapter.Phase) {
		p.Send(phaseMsg(ph))
	})

	go func() {
		err := l.session.Run(ctx, l.endpoint)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.Send(logMsg{text: fmt.Sprintf("session stopped: %v", err), isError: true})
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-l.session.Results():
				p.Send(pollMsg(res))
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
