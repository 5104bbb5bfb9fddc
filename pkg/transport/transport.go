// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte links an adapter can be reached over.
//
// Every link is exposed through the same event-stream abstraction: Connect
// returns a channel that reports the connection coming up, every inbound
// chunk of bytes, and finally the connection going down. The protocol
// engine consumes that channel and never depends on a concrete link API.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport errors.
var (
	ErrNotOpen     = errors.New("transport: not open")
	ErrAlreadyOpen = errors.New("transport: already open")
	ErrWrongKind   = errors.New("transport: endpoint kind not supported")
)

// Kind identifies the type of link an endpoint is reached over.
type Kind uint8

const (
	KindSerial Kind = iota + 1
	KindTCP
	KindWebSocket
	KindSimulator
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	case KindWebSocket:
		return "websocket"
	case KindSimulator:
		return "simulator"
	default:
		return "unknown"
	}
}

// Endpoint describes a discovered or configured adapter.
type Endpoint struct {
	Kind    Kind   `cbor:"1,keyasint"`
	Address string `cbor:"2,keyasint"`
	Name    string `cbor:"3,keyasint,omitempty"`
	Baud    int    `cbor:"4,keyasint,omitempty"`
	VID     string `cbor:"5,keyasint,omitempty"`
	PID     string `cbor:"6,keyasint,omitempty"`
	Serial  string `cbor:"7,keyasint,omitempty"`
}

// String returns a one-line description of the endpoint.
func (e Endpoint) String() string {
	switch e.Kind {
	case KindSerial:
		if e.Baud > 0 {
			return fmt.Sprintf("Serial: %s @ %d baud", e.Address, e.Baud)
		}
		return fmt.Sprintf("Serial: %s", e.Address)
	case KindTCP:
		return fmt.Sprintf("TCP: %s", e.Address)
	case KindWebSocket:
		return fmt.Sprintf("WebSocket: %s", e.Address)
	case KindSimulator:
		return fmt.Sprintf("Simulator: %s", e.Address)
	}
	return e.Address
}

// Filter narrows the endpoints reported by Scan.
type Filter struct {
	// NamePrefix matches the start of the endpoint address or name,
	// case-insensitively. Empty matches everything.
	NamePrefix string

	// USBOnly drops serial ports that are not backed by a USB device.
	USBOnly bool
}

// Match reports whether ep passes the name filter.
func (f Filter) Match(ep Endpoint) bool {
	if f.NamePrefix == "" {
		return true
	}
	prefix := strings.ToLower(f.NamePrefix)
	return strings.HasPrefix(strings.ToLower(ep.Address), prefix) ||
		strings.HasPrefix(strings.ToLower(ep.Name), prefix)
}

// EventKind identifies what an Event reports.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventData
	EventDisconnected
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "CONNECTED"
	case EventData:
		return "DATA"
	case EventDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Event is one item of a connection's event stream.
type Event struct {
	Kind EventKind
	Data []byte
	// Err is the reason for an EventDisconnected; nil when the link was
	// closed locally.
	Err error
	At  time.Time
}

// Transport is a link to one adapter at a time.
type Transport interface {
	// Scan reports candidate endpoints. The channel is closed when the
	// scan completes or ctx is done.
	Scan(ctx context.Context, filter Filter) (<-chan Endpoint, error)

	// Connect opens ep and returns its event stream. The stream starts
	// with EventConnected and ends with EventDisconnected, after which it
	// is closed.
	Connect(ctx context.Context, ep Endpoint) (<-chan Event, error)

	// Write sends p on the open link.
	Write(p []byte) error

	// Close closes the open link. Closing an idle transport is a no-op.
	Close() error
}

// scanResult sends a fixed endpoint list through a closed channel.
func scanResult(ctx context.Context, filter Filter, eps []Endpoint) <-chan Endpoint {
	out := make(chan Endpoint, len(eps))
	defer close(out)
	for _, ep := range eps {
		if ctx.Err() != nil {
			break
		}
		if filter.Match(ep) {
			out <- ep
		}
	}
	return out
}
