// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/rumble/pkg/elm"
)

// DefaultResetSettle is how long the adapter is left alone after ATZ.
const DefaultResetSettle = time.Second

// Executor runs commands one at a time. *Queue implements it.
type Executor interface {
	Execute(ctx context.Context, cmd elm.Command) (string, error)
}

// InitOptions configures the initialization sequence.
type InitOptions struct {
	Protocol    string
	Header      string
	ResetSettle time.Duration

	// OnPhase is told when the sequence starts and completes.
	OnPhase func(Phase)

	Logger *slog.Logger
}

// Initializer brings an adapter from power-on to ready:
// Reset, EchoOff, LinefeedOff, SetProtocol, SetHeader.
//
// The sequence is best-effort. A failed step other than a lost link is
// logged and the next step runs anyway.
type Initializer struct {
	exec Executor
	opts InitOptions
	log  *slog.Logger

	mu        sync.Mutex
	adapterID string
}

// NewInitializer creates an initializer issuing commands through exec.
func NewInitializer(exec Executor, opts InitOptions) *Initializer {
	if opts.Protocol == "" {
		opts.Protocol = elm.ProtocolCAN11Bit500
	}
	if opts.Header == "" {
		opts.Header = elm.DefaultHeader
	}
	if opts.ResetSettle <= 0 {
		opts.ResetSettle = DefaultResetSettle
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Initializer{
		exec: exec,
		opts: opts,
		log:  opts.Logger,
	}
}

type initStep struct {
	name string
	cmd  elm.Command
}

func (i *Initializer) steps() []initStep {
	return []initStep{
		{"reset", elm.Reset().WithSettle(i.opts.ResetSettle)},
		{"echo off", elm.EchoOff()},
		{"linefeed off", elm.LinefeedOff()},
		{"set protocol", elm.SetProtocol(i.opts.Protocol)},
		{"set header", elm.SetHeader(i.opts.Header)},
	}
}

// Run executes the whole sequence. It returns early only when the link is
// gone or ctx is cancelled.
func (i *Initializer) Run(ctx context.Context) error {
	i.phase(Phase{Kind: PhaseInitializing})

	for idx, st := range i.steps() {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := i.exec.Execute(ctx, st.cmd)
		if idx == 0 {
			if id := elm.AdapterIdentifier(resp); err == nil && id != "" {
				i.mu.Lock()
				i.adapterID = id
				i.mu.Unlock()
				i.log.Info("adapter identified", "id", id)
			}
		}

		if err != nil {
			if errors.Is(err, ErrNotConnected) {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			i.log.Error("setup step failed", "step", st.name, "command", st.cmd.Text, "error", err)
			continue
		}
		if idx > 0 && !elm.IsOK(resp) {
			i.log.Warn("setup step not acknowledged", "step", st.name, "response", elm.FormatResponse(resp))
		}
	}

	i.phase(Phase{Kind: PhaseReady})
	return nil
}

// AdapterID returns the identifier reported by the last successful reset.
func (i *Initializer) AdapterID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.adapterID
}

func (i *Initializer) phase(p Phase) {
	if i.opts.OnPhase != nil {
		i.opts.OnPhase(p)
	}
}
