// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rumble/pkg/adapter"
)

var (
	watchShowAll       bool
	watchStatsInterval int
	watchMaxSpeed      int
	watchMaxRoadSpeed  int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log polled telemetry and flag failures",
	Long: `Connect, initialize the adapter and print poll cycles as they complete.

By default only failed cycles, anomalous values and source switches are
printed. Use --show-all to print every cycle.

A value is anomalous when its magnitude exceeds --max-speed (motor) or
--max-road-speed (vehicle). Statistics are printed every --stats-interval
seconds.

The link is re-established automatically when it drops.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchShowAll, "show-all", false, "Print every poll cycle (not just errors)")
	watchCmd.Flags().IntVar(&watchStatsInterval, "stats-interval", 10, "Statistics interval in seconds (0 disables)")
	watchCmd.Flags().IntVar(&watchMaxSpeed, "max-speed", 12000, "Motor speed above which a value is anomalous")
	watchCmd.Flags().IntVar(&watchMaxRoadSpeed, "max-road-speed", 250, "Road speed (km/h) above which a value is anomalous")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	l, err := openLink(ctx, nil)
	if err != nil {
		return err
	}
	defer l.Close()

	l.session.OnPhaseChange(func(p adapter.Phase) {
		fmt.Printf("[%s] [PHASE] %s\n", time.Now().Format("15:04:05.000"), p)
	})

	fmt.Printf("Rumble - Telemetry Watch\n")
	fmt.Printf("Endpoint: %s\n", l.endpoint)
	if watchShowAll {
		fmt.Printf("Mode: All cycles\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	runErr := make(chan error, 1)
	go func() { runErr <- l.session.Run(ctx, l.endpoint) }()

	var statsC <-chan time.Time
	if watchStatsInterval > 0 {
		statsTicker := time.NewTicker(time.Duration(watchStatsInterval) * time.Second)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	var last adapter.SpeedSource
	var seen bool
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case res := <-l.session.Results():
			if seen && res.Source != last {
				fmt.Printf("[%s] [SOURCE] speed now read via %s\n", res.At.Format("15:04:05.000"), res.Source)
			}
			last, seen = res.Source, true
			printPollResult(res)

		case <-statsC:
			fmt.Println()
			fmt.Print(l.session.Statistics())
			fmt.Println()
		}
	}
}

// anomalies lists the values in res that fall outside the plausible range.
func anomalies(res adapter.PollResult, maxSpeed, maxRoadSpeed int) []string {
	var out []string
	if res.SpeedOK && abs(res.Speed) > maxSpeed {
		out = append(out, fmt.Sprintf("motor speed %d exceeds %d", res.Speed, maxSpeed))
	}
	if res.VehicleOK && (res.VehicleSpeed < 0 || res.VehicleSpeed > maxRoadSpeed) {
		out = append(out, fmt.Sprintf("road speed %d km/h outside 0..%d", res.VehicleSpeed, maxRoadSpeed))
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func printPollResult(res adapter.PollResult) {
	timestamp := res.At.Format("15:04:05.000")

	switch {
	case res.HealStarted:
		fmt.Printf("[%s] \033[1;33mHEAL:\033[0m adapter unresponsive, re-initializing\n", timestamp)
	case res.Skipped:
		if watchShowAll {
			fmt.Printf("[%s] cycle %d skipped (re-initializing)\n", timestamp, res.Cycle)
		}
		return
	}

	if res.Err != nil {
		kind, _ := adapter.KindOf(res.Err)
		fmt.Printf("[%s] \033[1;31m%s:\033[0m cycle %d via %s: %v\n", timestamp, kind, res.Cycle, res.Source, res.Err)
		return
	}

	for _, a := range anomalies(res, watchMaxSpeed, watchMaxRoadSpeed) {
		fmt.Printf("[%s] \033[1;31mANOMALY:\033[0m cycle %d: %s\n", timestamp, res.Cycle, a)
	}

	if watchShowAll {
		line := fmt.Sprintf("[%s] cycle %-6d %-9s %6d rpm", timestamp, res.Cycle, res.Source, res.Speed)
		if res.VehicleOK {
			line += fmt.Sprintf("  %3d km/h", res.VehicleSpeed)
		}
		fmt.Println(line)
	}
}
