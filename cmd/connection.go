// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/config"
	"github.com/Thermoquad/rumble/pkg/elm"
	"github.com/Thermoquad/rumble/pkg/store"
	"github.com/Thermoquad/rumble/pkg/transport"
)

// errNoEndpoint is returned when no connection flag is set and nothing has
// been paired yet.
var errNoEndpoint = errors.New("one of --port, --tcp, --url or --simulate must be specified")

// openStore opens the state store: badger on disk when a directory is
// configured, in memory otherwise.
func openStore() (store.Store, error) {
	if cfg.Store.Dir == "" {
		return store.NewMemory(), nil
	}
	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return store.OpenBadger(store.BadgerOptions{Dir: cfg.Store.Dir, Logger: logger})
}

// flagEndpoint returns the endpoint selected by connection flags.
func flagEndpoint() (transport.Endpoint, bool) {
	switch {
	case simulate:
		return transport.Endpoint{Kind: transport.KindSimulator, Address: transport.SimulatorAddress}, true
	case wsURL != "":
		return transport.Endpoint{Kind: transport.KindWebSocket, Address: wsURL}, true
	case tcpAddr != "":
		return transport.Endpoint{Kind: transport.KindTCP, Address: tcpAddr}, true
	case portName != "":
		return transport.Endpoint{Kind: transport.KindSerial, Address: portName, Baud: baudRate}, true
	}
	return transport.Endpoint{}, false
}

// resolveEndpoint picks the endpoint from flags, falling back to the last
// paired adapter.
func resolveEndpoint(ctx context.Context, pairing *store.Pairing) (transport.Endpoint, error) {
	if ep, ok := flagEndpoint(); ok {
		return ep, nil
	}

	ep, ok, err := pairing.Last(ctx)
	if err != nil {
		return transport.Endpoint{}, fmt.Errorf("read last paired adapter: %w", err)
	}
	if !ok {
		return transport.Endpoint{}, errNoEndpoint
	}
	logger.Info("using last paired adapter", "endpoint", ep.String())
	return ep, nil
}

// newTransport builds the transport that serves ep.
func newTransport(ep transport.Endpoint) (transport.Transport, error) {
	switch ep.Kind {
	case transport.KindSimulator:
		return transport.NewSimulator(transport.SimulatorOptions{}, logger), nil

	case transport.KindWebSocket:
		password := ""
		if wsUsername != "" {
			var err error
			password, err = transport.GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return transport.NewWebSocket(transport.WebSocketOptions{
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}, logger), nil

	case transport.KindTCP:
		return transport.NewTCP(logger), nil

	case transport.KindSerial:
		baud := ep.Baud
		if baud == 0 {
			baud = baudRate
		}
		return transport.NewSerial(baud, logger), nil
	}
	return nil, fmt.Errorf("%w: %s", transport.ErrWrongKind, ep.Kind)
}

// sessionOptions maps configuration onto a session.
func sessionOptions(c *config.Config, t transport.Transport) adapter.SessionOptions {
	layout := elm.DefaultPrimaryLayout
	layout.Offset = c.Adapter.PrimaryOffset

	settle := config.Ms(c.Adapter.SettleMs)
	if c.Adapter.SettleMs == 0 {
		settle = -1
	}

	return adapter.SessionOptions{
		Transport: t,
		Settle:    settle,
		Init: adapter.InitOptions{
			Protocol:    c.Adapter.Protocol,
			Header:      c.Adapter.Header,
			ResetSettle: config.Ms(c.Adapter.ResetSettleMs),
		},
		Poll: adapter.PollerOptions{
			Interval:       config.Ms(c.Poll.IntervalMs),
			SecondaryEvery: c.Poll.SecondaryEvery,
			HealThreshold:  c.Poll.HealThreshold,
			Layout:         layout,
		},
		Backoff: adapter.BackoffConfig{
			Initial: config.Ms(c.Reconnect.InitialMs),
			Max:     config.Ms(c.Reconnect.MaxMs),
			Jitter:  jitter(c.Reconnect.Jitter),
		},
		Logger: logger,
	}
}

// jitter maps a configured zero onto "disabled"; BackoffConfig treats zero
// as the default.
func jitter(j float64) float64 {
	if j == 0 {
		return -1
	}
	return j
}

// link is everything a command needs to talk to one adapter.
type link struct {
	session  *adapter.Session
	endpoint transport.Endpoint
	store    store.Store
	capture  *adapter.CaptureFile
}

// openLink resolves the endpoint and builds a session around it. It does
// not connect.
func openLink(ctx context.Context, customize func(*adapter.SessionOptions)) (*link, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	pairing := store.NewPairing(st)

	ep, err := resolveEndpoint(ctx, pairing)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	t, err := newTransport(ep)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := sessionOptions(cfg, t)
	opts.Pairing = pairing

	l := &link{endpoint: ep, store: st}
	if cfg.Adapter.Capture != "" {
		l.capture, err = adapter.NewCaptureFile(cfg.Adapter.Capture)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		opts.Recorders = append(opts.Recorders, l.capture)
	}
	if customize != nil {
		customize(&opts)
	}

	l.session, err = adapter.NewSession(opts)
	if err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close disconnects and releases the store and capture file.
func (l *link) Close() {
	if l.session != nil {
		l.session.Disconnect()
	}
	if l.capture != nil {
		if err := l.capture.Close(); err != nil {
			logger.Warn("failed to close capture", "error", err)
		}
	}
	if err := l.store.Close(); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}
