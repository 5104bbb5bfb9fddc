// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/store"
	"github.com/Thermoquad/rumble/pkg/transport"
)

var (
	scanPrefix  string
	scanUSBOnly bool
	scanTimeout int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List adapters that can be connected to",
	Long: `List candidate adapters: local serial ports, the usual WiFi adapter address,
the simulator, and the last paired adapter.

Exit codes:
  0 - At least one candidate found
  1 - Nothing found
  2 - Scan error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanPrefix, "prefix", "", "Only list endpoints whose address or name starts with this")
	scanCmd.Flags().BoolVar(&scanUSBOnly, "usb-only", false, "Only list USB serial ports")
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(scanTimeout)*time.Second)
	defer cancel()

	filter := transport.Filter{NamePrefix: scanPrefix, USBOnly: scanUSBOnly}
	transports := []transport.Transport{
		transport.NewSerial(baudRate, logger),
		transport.NewTCP(logger),
		transport.NewSimulator(transport.SimulatorOptions{}, logger),
	}

	fmt.Printf("Rumble - Adapter Scan\n\n")

	found := 0
	for _, t := range transports {
		ch, err := t.Scan(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
			os.Exit(2)
		}
		for ep := range ch {
			found++
			fmt.Printf("  %-10s %s\n", ep.Kind, describeEndpoint(ep))
		}
	}

	st, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		os.Exit(2)
	}
	defer st.Close()

	last, ok, err := store.NewPairing(st).Last(ctx)
	switch {
	case err != nil:
		logger.Warn("failed to read last paired adapter", "error", err)
	case ok:
		fmt.Printf("\nLast paired: %s\n", last)
	}

	if found == 0 {
		fmt.Printf("No adapters found\n")
		st.Close()
		os.Exit(1)
	}
	fmt.Printf("\n%d candidate(s)\n", found)
	return nil
}

func describeEndpoint(ep transport.Endpoint) string {
	s := ep.Address
	if ep.Name != "" {
		s += "  " + ep.Name
	}
	if ep.VID != "" {
		s += fmt.Sprintf("  [%s:%s]", ep.VID, ep.PID)
	}
	if ep.Serial != "" {
		s += "  S/N " + ep.Serial
	}
	return s
}
