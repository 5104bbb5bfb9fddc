// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultTCPAddress is where most Wi-Fi ELM327 adapters listen.
const DefaultTCPAddress = "192.168.0.10:35000"

const tcpDialTimeout = 5 * time.Second

// TCP reaches Wi-Fi adapters that expose a raw socket.
type TCP struct {
	base
	dialer net.Dialer
}

// NewTCP creates a TCP transport.
func NewTCP(logger *slog.Logger) *TCP {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCP{
		base:   base{log: logger.With("transport", KindTCP.String())},
		dialer: net.Dialer{Timeout: tcpDialTimeout},
	}
}

// Scan reports the conventional Wi-Fi adapter address. Raw-socket
// adapters do not announce themselves.
func (t *TCP) Scan(ctx context.Context, filter Filter) (<-chan Endpoint, error) {
	return scanResult(ctx, filter, []Endpoint{{
		Kind:    KindTCP,
		Address: DefaultTCPAddress,
		Name:    "Wi-Fi adapter",
	}}), nil
}

// Connect dials ep.Address.
func (t *TCP) Connect(ctx context.Context, ep Endpoint) (<-chan Event, error) {
	if ep.Kind != KindTCP {
		return nil, ErrWrongKind
	}
	if t.busy() {
		return nil, ErrAlreadyOpen
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", ep.Address, err)
	}
	t.log.Info("tcp connected", "address", ep.Address)
	return t.open(conn)
}
