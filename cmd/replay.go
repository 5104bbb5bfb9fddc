// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/elm"
)

var (
	replayErrorsOnly bool
	replayValues     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Print the transactions stored in a capture file",
	Long: `Read a capture file written with adapter.capture and print every
transaction in order, followed by a per-kind summary.

Examples:
  rumble replay drive.cbor
  rumble replay --errors drive.cbor
  rumble replay --values drive.cbor

Exit codes:
  0 - Capture read completely
  1 - Capture could not be read`,
	Args: cobra.ExactArgs(1),
	Run:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayErrorsOnly, "errors", false, "Only print failed transactions")
	replayCmd.Flags().BoolVar(&replayValues, "values", false, "Decode telemetry values from each response")
}

// replaySummary accumulates per-kind counts over a capture.
type replaySummary struct {
	total    int
	kinds    map[adapter.ErrorKind]int
	sessions map[string]struct{}
	elapsed  time.Duration
	first    time.Time
	last     time.Time
}

func newReplaySummary() *replaySummary {
	return &replaySummary{
		kinds:    make(map[adapter.ErrorKind]int),
		sessions: make(map[string]struct{}),
	}
}

func (s *replaySummary) add(tx adapter.Transaction) {
	if s.total == 0 {
		s.first = tx.At
	}
	s.total++
	s.kinds[tx.Kind]++
	s.sessions[tx.Session.String()] = struct{}{}
	s.elapsed += tx.Duration
	s.last = tx.At
}

func (s *replaySummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Capture summary ---\n")
	fmt.Fprintf(&b, "%d transactions, %d sessions", s.total, len(s.sessions))
	if s.total > 0 {
		fmt.Fprintf(&b, ", spanning %s", s.last.Sub(s.first).Round(time.Millisecond))
	}
	b.WriteString("\n")
	for kind := adapter.KindNone; kind <= adapter.KindCancelled; kind++ {
		if n := s.kinds[kind]; n > 0 {
			fmt.Fprintf(&b, "  %-14s %d (%.1f%%)\n", kind, n, float64(n)*100/float64(s.total))
		}
	}
	if s.total > 0 {
		fmt.Fprintf(&b, "Mean round trip: %s\n", (s.elapsed / time.Duration(s.total)).Round(time.Microsecond))
	}
	return b.String()
}

func runReplay(cmd *cobra.Command, args []string) {
	r, err := adapter.OpenCapture(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	layout := elm.DefaultPrimaryLayout
	layout.Offset = cfg.Adapter.PrimaryOffset

	fmt.Printf("Rumble - Capture Replay\n")
	fmt.Printf("=======================\n")
	fmt.Printf("File: %s\n\n", args[0])

	summary := newReplaySummary()
	for {
		tx, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: capture truncated after %d transactions: %v\n", summary.total, err)
			fmt.Println()
			fmt.Print(summary)
			os.Exit(1)
		}
		summary.add(tx)

		if replayErrorsOnly && !tx.Err {
			continue
		}
		fmt.Println(formatTransaction(tx))
		if replayValues && !tx.Err {
			for _, v := range elm.DescribeValues(tx.Response, layout) {
				fmt.Printf("    %s\n", v)
			}
		}
	}

	fmt.Println()
	fmt.Print(summary)
}

func formatTransaction(tx adapter.Transaction) string {
	id := tx.Session.String()
	if len(id) > 8 {
		id = id[:8]
	}
	outcome := elm.FormatResponse(tx.Response)
	if tx.Err {
		outcome = "✗ " + tx.Kind.String()
	}
	return fmt.Sprintf("%s %s %-8s %6.1fms  %s",
		tx.At.Format("15:04:05.000"), id, tx.Command,
		float64(tx.Duration.Microseconds())/1000, outcome)
}
