// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaud is the factory rate of most ELM327 clones.
const DefaultBaud = 38400

// serialReadTimeout bounds each blocking read so Close is observed promptly.
const serialReadTimeout = 100 * time.Millisecond

// Serial reaches adapters over a local serial port (USB or Bluetooth SPP).
type Serial struct {
	base
	baud int

	// listPorts and openPort are replaced in tests.
	listPorts func() ([]*enumerator.PortDetails, error)
	openPort  func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerial creates a serial transport. A baud of zero selects DefaultBaud.
func NewSerial(baud int, logger *slog.Logger) *Serial {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		base:      base{log: logger.With("transport", KindSerial.String())},
		baud:      baud,
		listPorts: enumerator.GetDetailedPortsList,
		openPort:  serial.Open,
	}
}

// Scan lists the serial ports present on the host.
func (s *Serial) Scan(ctx context.Context, filter Filter) (<-chan Endpoint, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	eps := make([]Endpoint, 0, len(ports))
	for _, p := range ports {
		if filter.USBOnly && !p.IsUSB {
			continue
		}
		eps = append(eps, Endpoint{
			Kind:    KindSerial,
			Address: p.Name,
			Name:    p.Product,
			Baud:    s.baud,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
		})
	}
	s.log.Debug("serial scan complete", "ports", len(ports), "matched", len(eps))
	return scanResult(ctx, filter, eps), nil
}

// Connect opens the serial port named by ep.Address.
func (s *Serial) Connect(ctx context.Context, ep Endpoint) (<-chan Event, error) {
	if ep.Kind != KindSerial {
		return nil, ErrWrongKind
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.busy() {
		return nil, ErrAlreadyOpen
	}

	baud := ep.Baud
	if baud <= 0 {
		baud = s.baud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := s.openPort(ep.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", ep.Address, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to configure serial port %s: %w", ep.Address, err)
	}

	// Reads now return (0, nil) on timeout, letting the stream loop
	// notice a local Close between reads.
	s.log.Info("serial port opened", "port", ep.Address, "baud", baud)
	return s.open(port)
}
