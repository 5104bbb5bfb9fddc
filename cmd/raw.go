// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/elm"
)

var (
	rawInit    bool
	rawTimeout int
)

var rawCmd = &cobra.Command{
	Use:   "raw <command> [command...]",
	Short: "Send raw commands to the adapter",
	Long: `Send one or more commands verbatim and print each response, the bytes
decoded from it and any telemetry values that parse out of it.

Examples:
  rumble raw --simulate ATI
  rumble raw --port /dev/ttyUSB0 --init 220101 010C

Exit codes:
  0 - Every command answered
  1 - One or more commands failed
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
	rawCmd.Flags().BoolVar(&rawInit, "init", false, "Run the initialization sequence first")
	rawCmd.Flags().IntVar(&rawTimeout, "timeout", 2, "Timeout in seconds per command")
}

func runRaw(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	l, err := openLink(ctx, func(o *adapter.SessionOptions) {
		o.SkipInit = !rawInit
		o.NoPoll = true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	if err := l.session.Connect(ctx, l.endpoint); err != nil {
		l.Close()
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Connection: %s\n", l.endpoint)
	if id := l.session.AdapterID(); id != "" {
		fmt.Printf("Adapter: %s\n", id)
	}
	fmt.Println()

	layout := elm.DefaultPrimaryLayout
	layout.Offset = cfg.Adapter.PrimaryOffset
	timeout := time.Duration(rawTimeout) * time.Second

	failed := 0
	for _, text := range args {
		fmt.Printf("> %s\n", text)

		resp, err := l.session.Execute(ctx, elm.Raw(text).WithTimeout(timeout))
		if err != nil {
			fmt.Printf("  error: %v\n\n", err)
			failed++
			continue
		}

		fmt.Printf("  response: %s\n", elm.FormatResponse(resp))
		fmt.Printf("  bytes:    %s\n", strings.ReplaceAll(elm.FormatHex(elm.ExtractBytes(resp)), "\n", "\n            "))
		for _, v := range elm.DescribeValues(resp, layout) {
			fmt.Printf("  value:    %s\n", v)
		}
		fmt.Println()
	}

	l.Close()

	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
