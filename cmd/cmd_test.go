// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rumble/pkg/adapter"
	"github.com/Thermoquad/rumble/pkg/config"
	"github.com/Thermoquad/rumble/pkg/mixer"
	"github.com/Thermoquad/rumble/pkg/sound"
	"github.com/Thermoquad/rumble/pkg/store"
	"github.com/Thermoquad/rumble/pkg/transport"
)

// withQuietLogger installs a discarding logger for the duration of the test.
func withQuietLogger(t *testing.T) {
	t.Helper()
	prev := logger
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { logger = prev })
}

// withFlags resets the connection flags after the test.
func withFlags(t *testing.T) {
	t.Helper()
	prevSim, prevWS, prevTCP, prevPort, prevBaud := simulate, wsURL, tcpAddr, portName, baudRate
	simulate, wsURL, tcpAddr, portName = false, "", "", ""
	t.Cleanup(func() {
		simulate, wsURL, tcpAddr, portName, baudRate = prevSim, prevWS, prevTCP, prevPort, prevBaud
	})
}

func TestFlagEndpoint(t *testing.T) {
	withFlags(t)

	_, ok := flagEndpoint()
	assert.False(t, ok)

	portName, baudRate = "/dev/ttyUSB0", 38400
	ep, ok := flagEndpoint()
	require.True(t, ok)
	assert.Equal(t, transport.KindSerial, ep.Kind)
	assert.Equal(t, 38400, ep.Baud)

	tcpAddr = "192.168.0.10:35000"
	ep, _ = flagEndpoint()
	assert.Equal(t, transport.KindTCP, ep.Kind, "tcp wins over a serial port")

	wsURL = "ws://bridge.local/ws"
	ep, _ = flagEndpoint()
	assert.Equal(t, transport.KindWebSocket, ep.Kind)

	simulate = true
	ep, _ = flagEndpoint()
	assert.Equal(t, transport.KindSimulator, ep.Kind)
	assert.Equal(t, transport.SimulatorAddress, ep.Address)
}

func TestResolveEndpointFallsBackToPairing(t *testing.T) {
	withFlags(t)
	withQuietLogger(t)
	ctx := context.Background()

	pairing := store.NewPairing(store.NewMemory())

	_, err := resolveEndpoint(ctx, pairing)
	assert.ErrorIs(t, err, errNoEndpoint)

	paired := transport.Endpoint{Kind: transport.KindTCP, Address: "10.0.0.5:35000", Name: "garage"}
	require.NoError(t, pairing.Remember(paired))

	ep, err := resolveEndpoint(ctx, pairing)
	require.NoError(t, err)
	assert.Equal(t, paired, ep)

	simulate = true
	ep, err = resolveEndpoint(ctx, pairing)
	require.NoError(t, err)
	assert.Equal(t, transport.KindSimulator, ep.Kind, "flags win over the paired adapter")
}

func TestSessionOptionsFromConfig(t *testing.T) {
	withQuietLogger(t)

	c := config.Default()
	c.Adapter.PrimaryOffset = 2
	opts := sessionOptions(c, transport.NewSimulator(transport.SimulatorOptions{}, logger))

	assert.Equal(t, 100*time.Millisecond, opts.Settle)
	assert.Equal(t, "6", opts.Init.Protocol)
	assert.Equal(t, "7E4", opts.Init.Header)
	assert.Equal(t, time.Second, opts.Init.ResetSettle)
	assert.Equal(t, 100*time.Millisecond, opts.Poll.Interval)
	assert.Equal(t, 10, opts.Poll.SecondaryEvery)
	assert.Equal(t, 3, opts.Poll.HealThreshold)
	assert.Equal(t, 2, opts.Poll.Layout.Offset)
	assert.Equal(t, 30*time.Second, opts.Backoff.Max)
	assert.InDelta(t, 0.25, opts.Backoff.Jitter, 1e-9)

	c.Adapter.SettleMs = 0
	c.Reconnect.Jitter = 0
	opts = sessionOptions(c, nil)
	assert.Negative(t, opts.Settle, "zero settle disables the gap")
	assert.Negative(t, opts.Backoff.Jitter, "zero jitter disables it")
}

func TestCrossfadeTable(t *testing.T) {
	table := crossfadeTable(sound.DefaultProfile(), 4)
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")

	require.Len(t, lines, 6, "header plus steps+1 rows")
	assert.Contains(t, lines[0], "L4")
	assert.Contains(t, lines[0], "power")
	assert.True(t, strings.HasPrefix(lines[1], "       0   1.000"), "idle layer is full at zero: %q", lines[1])
	assert.True(t, strings.HasPrefix(lines[5], "    8000"))
}

func TestAnomalies(t *testing.T) {
	tests := []struct {
		name string
		res  adapter.PollResult
		want int
	}{
		{"plausible", adapter.PollResult{Speed: 3000, SpeedOK: true, VehicleSpeed: 80, VehicleOK: true}, 0},
		{"regen magnitude", adapter.PollResult{Speed: -13000, SpeedOK: true}, 1},
		{"road speed", adapter.PollResult{VehicleSpeed: 400, VehicleOK: true}, 1},
		{"negative road speed", adapter.PollResult{VehicleSpeed: -1, VehicleOK: true}, 1},
		{"both", adapter.PollResult{Speed: 20000, SpeedOK: true, VehicleSpeed: 300, VehicleOK: true}, 2},
		{"invalid values ignored", adapter.PollResult{Speed: 20000, VehicleSpeed: 300}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, anomalies(tt.res, 12000, 250), tt.want)
		})
	}
}

func TestReplaySummary(t *testing.T) {
	id := uuid.New()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := newReplaySummary()
	s.add(adapter.Transaction{Session: id, Command: "220101", At: start, Duration: 40 * time.Millisecond})
	s.add(adapter.Transaction{Session: id, Command: "220101", At: start.Add(time.Second), Duration: 60 * time.Millisecond})
	s.add(adapter.Transaction{Session: uuid.New(), Command: "010C", At: start.Add(2 * time.Second),
		Duration: 500 * time.Millisecond, Err: true, Kind: adapter.KindTimeout})

	out := s.String()
	assert.Contains(t, out, "3 transactions, 2 sessions, spanning 2s")
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "TIMEOUT")
	assert.Contains(t, out, "Mean round trip: 200ms")
	assert.NotContains(t, out, "NO_DATA")
}

func TestFormatTransaction(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tx := adapter.Transaction{Session: uuid.New(), Command: "010C", Response: "41 0C 1A F8", At: at, Duration: 42 * time.Millisecond}

	line := formatTransaction(tx)
	assert.Contains(t, line, "12:00:00.000")
	assert.Contains(t, line, tx.Session.String()[:8])
	assert.Contains(t, line, "42.0ms")

	tx.Err, tx.Kind = true, adapter.KindNoData
	assert.Contains(t, formatTransaction(tx), "NO_DATA")
}

//////////////////////////////////////////////////////////////
// Monitor model
//////////////////////////////////////////////////////////////

func newTestMonitor(t *testing.T) monitorModel {
	t.Helper()
	withQuietLogger(t)

	s, err := adapter.NewSession(adapter.SessionOptions{
		Transport: transport.NewSimulator(transport.SimulatorOptions{}, logger),
		Logger:    logger,
	})
	require.NoError(t, err)

	e, err := sound.NewEngine(sound.EngineOptions{
		Graph:  mixer.New(8000),
		Loader: mixer.FileLoader{SampleRate: 8000},
		Values: s.Register(),
		Logger: logger,
	})
	require.NoError(t, err)

	return initialMonitorModel(context.Background(), s, e, "simulator")
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m monitorModel, msg tea.Msg) (monitorModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(monitorModel), cmd
}

func TestMonitorVolumeKeys(t *testing.T) {
	m := newTestMonitor(t)
	base := m.engine.Volume()

	m, _ = update(m, runes("+"))
	assert.InDelta(t, base+volumeStep, m.engine.Volume(), 1e-6)

	m, _ = update(m, runes("-"))
	m, _ = update(m, runes("-"))
	assert.InDelta(t, base-volumeStep, m.engine.Volume(), 1e-6)
}

func TestMonitorQuit(t *testing.T) {
	m := newTestMonitor(t)

	m, cmd := update(m, runes("q"))
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, "Shutting down...\n", m.View())
}

func TestMonitorRawCommand(t *testing.T) {
	m := newTestMonitor(t)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusRawInput, m.focus)

	// q is typed into the input while it has focus
	m, _ = update(m, runes("q"))
	assert.False(t, m.quitting)
	m.rawInput.SetValue("ATI")

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.rawBusy)
	assert.Empty(t, m.rawInput.Value())

	// Not connected: the command fails without blocking
	msg := cmd()
	res, ok := msg.(rawResultMsg)
	require.True(t, ok)
	assert.Equal(t, "ATI", res.command)
	assert.True(t, errors.Is(res.err, adapter.ErrNotConnected))

	m, _ = update(m, res)
	assert.False(t, m.rawBusy)
	require.NotEmpty(t, m.eventLog)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)
}

func TestMonitorEvents(t *testing.T) {
	m := newTestMonitor(t)

	m, _ = update(m, phaseMsg(adapter.Failed("no adapter")))
	assert.Equal(t, adapter.PhaseFailed, m.phase.Kind)
	assert.True(t, m.eventLog[0].isError)

	m, _ = update(m, pollMsg(adapter.PollResult{Source: adapter.SourcePrimary, Speed: 900, SpeedOK: true}))
	m, _ = update(m, pollMsg(adapter.PollResult{Source: adapter.SourceFallback, HealStarted: true}))
	require.Len(t, m.eventLog, 3)
	assert.Contains(t, m.eventLog[1].message, "re-initializing")
	assert.Contains(t, m.eventLog[2].message, "fallback")

	for i := 0; i < maxLogEntries+10; i++ {
		m, _ = update(m, logMsg{text: "event"})
	}
	assert.Len(t, m.eventLog, maxLogEntries)

	view := m.View()
	assert.Contains(t, view, "RUMBLE - MONITOR")
	assert.Contains(t, view, "FAILED: no adapter")
}
