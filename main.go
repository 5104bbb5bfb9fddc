// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Rumble - Engine Sound Synthesizer
//
// Reads motor speed from an ELM327 OBD adapter and renders a blended,
// pitch-matched engine sound.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/rumble/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
