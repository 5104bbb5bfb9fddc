// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/elm"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the adapter link by sending ATI",
	Long: `Send ATI (identify) to the adapter and wait for its banner.

This command tests bidirectional communication with the adapter without
touching its configuration or the vehicle bus.

This is useful for verifying:
  - The serial port, TCP socket or WebSocket bridge opens
  - The adapter answers and terminates responses with a prompt
  - Round-trip latency of the link

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	l, err := openLink(ctx, func(o *adapter.SessionOptions) {
		o.SkipInit = true
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

	fmt.Printf("Rumble - Adapter Ping Test\n")
	fmt.Printf("Connection: %s\n", l.endpoint)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	timeout := time.Duration(pingTimeout) * time.Second
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		resp, err := l.session.Execute(ctx, elm.Identify().WithTimeout(timeout))
		rtt := time.Since(start)

		switch {
		case err != nil:
			kind, _ := adapter.KindOf(err)
			fmt.Printf("%s: %v\n", kind, err)
			failCount++
		case elm.IsAdapterIdentifier(resp):
			fmt.Printf("PONG from %s, rtt=%v\n", elm.AdapterIdentifier(resp), rtt.Round(time.Millisecond))
			successCount++
		default:
			fmt.Printf("UNEXPECTED %q, rtt=%v\n", elm.FormatResponse(resp), rtt.Round(time.Millisecond))
			failCount++
		}

		if ctx.Err() != nil {
			break
		}
	}

	l.Close()

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
