// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// Network connection flags
	tcpAddr       string
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Simulated adapter
	simulate bool

	// Ambient flags
	configPath string
	logLevel   string
	logFile    string
	storeDir   string
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "rumble",
	Short: "Engine sound synthesizer for ELM327-connected electric motors",
	Long: `Rumble - turns live motor speed read through an ELM327 OBD adapter into a
blended engine sound.

The adapter is polled for motor speed; a crossfade engine blends looping
recordings made at different speeds, shifting their pitch to match.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 38400]
  TCP:       --tcp 192.168.0.10:35000
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate

Without a connection flag the last paired adapter is used.

For WebSocket authentication, the password is read from the RUMBLE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			_ = logSink.Close()
		}
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (serial only)")

	// Network connection flags
	rootCmd.PersistentFlags().StringVar(&tcpAddr, "tcp", "", "TCP adapter address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use the built-in simulated adapter")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", "", "State directory (default: in memory)")
}

// setup loads configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger, err = newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// newLogger builds a text logger. With no log file, logs go to fallback.
func newLogger(lc config.LogConfig, fallback io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(lc.Level))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	out := fallback
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logSink = f
		out = f
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

// Execute runs the root command. Cancelling ctx stops long-running
// commands.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
