// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SimulatorAddress is the address of the one endpoint a Simulator offers.
const SimulatorAddress = "sim://elm327"

// SimulatorIdentifier is the banner the simulated adapter answers with.
const SimulatorIdentifier = "ELM327 v1.5"

// SpeedFunc returns the simulated signed motor speed at elapsed time t.
type SpeedFunc func(t time.Duration) int

// SweepSpeed is the default simulated speed: a 20 s sine sweep between
// 200 and 5800 rpm.
func SweepSpeed(t time.Duration) int {
	phase := 2 * math.Pi * t.Seconds() / 20
	return int(3000 + 2800*math.Sin(phase))
}

// SimulatorOptions configures the simulated adapter.
type SimulatorOptions struct {
	// Latency delays every reply. Zero answers immediately.
	Latency time.Duration

	// Speed drives the telemetry replies. Nil selects SweepSpeed.
	Speed SpeedFunc

	// PrimaryUnsupported makes the manufacturer DID answer NO DATA.
	PrimaryUnsupported bool
}

// Simulator is an in-process ELM327 emulator exposed as a Transport.
type Simulator struct {
	base
	opts   SimulatorOptions
	silent atomic.Bool

	mu      sync.Mutex
	current *simAdapter
}

// NewSimulator creates a simulator transport.
func NewSimulator(opts SimulatorOptions, logger *slog.Logger) *Simulator {
	if opts.Speed == nil {
		opts.Speed = SweepSpeed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		base: base{log: logger.With("transport", KindSimulator.String())},
		opts: opts,
	}
}

// SetSilent stops (or resumes) all replies, as a stalled adapter would.
func (s *Simulator) SetSilent(silent bool) {
	s.silent.Store(silent)
}

// Scan reports the single simulated endpoint.
func (s *Simulator) Scan(ctx context.Context, filter Filter) (<-chan Endpoint, error) {
	return scanResult(ctx, filter, []Endpoint{{
		Kind:    KindSimulator,
		Address: SimulatorAddress,
		Name:    "Simulated " + SimulatorIdentifier,
	}}), nil
}

// Connect starts a fresh simulated adapter.
func (s *Simulator) Connect(ctx context.Context, ep Endpoint) (<-chan Event, error) {
	if ep.Kind != KindSimulator {
		return nil, ErrWrongKind
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := newSimAdapter(s.opts, &s.silent)
	events, err := s.open(a)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = a
	s.mu.Unlock()
	return events, nil
}

// Drop cuts the link from the adapter side, as a power loss or an
// out-of-range Bluetooth adapter would.
func (s *Simulator) Drop() {
	s.mu.Lock()
	a := s.current
	s.current = nil
	s.mu.Unlock()
	if a != nil {
		_ = a.Close()
	}
}

type simReply struct {
	data []byte
	at   time.Time
}

// simAdapter answers AT and OBD commands the way a clone adapter does.
type simAdapter struct {
	opts    SimulatorOptions
	silent  *atomic.Bool
	started time.Time

	mu       sync.Mutex
	echo     bool
	linefeed bool
	line     []byte

	replies chan simReply
	pending []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newSimAdapter(opts SimulatorOptions, silent *atomic.Bool) *simAdapter {
	return &simAdapter{
		opts:     opts,
		silent:   silent,
		started:  time.Now(),
		echo:     true,
		linefeed: true,
		replies:  make(chan simReply, 16),
		done:     make(chan struct{}),
	}
}

func (a *simAdapter) Write(p []byte) (int, error) {
	select {
	case <-a.done:
		return 0, io.ErrClosedPipe
	default:
	}

	a.mu.Lock()
	var out [][]byte
	for _, b := range p {
		if b != '\r' {
			a.line = append(a.line, b)
			continue
		}
		cmd := string(a.line)
		a.line = a.line[:0]
		if reply := a.respond(cmd); reply != nil {
			out = append(out, reply)
		}
	}
	a.mu.Unlock()

	if a.silent.Load() {
		return len(p), nil
	}
	for _, reply := range out {
		select {
		case a.replies <- simReply{data: reply, at: time.Now().Add(a.opts.Latency)}:
		case <-a.done:
			return 0, io.ErrClosedPipe
		}
	}
	return len(p), nil
}

func (a *simAdapter) Read(p []byte) (int, error) {
	if len(a.pending) > 0 {
		n := copy(p, a.pending)
		a.pending = a.pending[n:]
		return n, nil
	}

	select {
	case r := <-a.replies:
		if wait := time.Until(r.at); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-a.done:
				timer.Stop()
				return 0, io.EOF
			}
		}
		n := copy(p, r.data)
		a.pending = r.data[n:]
		return n, nil
	case <-a.done:
		return 0, io.EOF
	}
}

func (a *simAdapter) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	return nil
}

// respond builds the full reply for one command, including echo and the
// trailing prompt. Callers hold a.mu.
func (a *simAdapter) respond(raw string) []byte {
	cmd := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if cmd == "" {
		return nil
	}

	var lines []string
	switch {
	case cmd == "ATZ" || cmd == "ATWS":
		a.echo = true
		a.linefeed = true
		lines = []string{"", SimulatorIdentifier}
	case cmd == "ATI":
		lines = []string{SimulatorIdentifier}
	case cmd == "ATE0" || cmd == "ATE1":
		lines = []string{"OK"}
		defer func() { a.echo = cmd == "ATE1" }()
	case cmd == "ATL0" || cmd == "ATL1":
		a.linefeed = cmd == "ATL1"
		lines = []string{"OK"}
	case strings.HasPrefix(cmd, "AT"):
		lines = []string{"OK"}
	case cmd == "220101":
		if a.opts.PrimaryUnsupported {
			lines = []string{"NO DATA"}
		} else {
			lines = a.motorStatus()
		}
	case cmd == "010C":
		rpm := a.speed()
		if rpm < 0 {
			rpm = -rpm
		}
		q := min(rpm*4, 0xFFFF)
		lines = []string{fmt.Sprintf("41 0C %02X %02X", q>>8, q&0xFF)}
	case cmd == "010D":
		kph := a.speed() / 60
		if kph < 0 {
			kph = -kph
		}
		lines = []string{fmt.Sprintf("41 0D %02X", min(kph, 0xFF))}
	default:
		lines = []string{"?"}
	}

	eol := "\r"
	if a.linefeed {
		eol = "\r\n"
	}
	var sb strings.Builder
	if a.echo {
		sb.WriteString(raw)
		sb.WriteString(eol)
	}
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString(eol)
	}
	sb.WriteString(eol)
	sb.WriteByte('>')
	return []byte(sb.String())
}

func (a *simAdapter) speed() int {
	return a.opts.Speed(time.Since(a.started))
}

// motorStatus renders the manufacturer DID as a two-frame ISO-TP reply
// with the signed speed in the first two data bytes.
func (a *simAdapter) motorStatus() []string {
	v := uint16(int16(max(min(a.speed(), math.MaxInt16), math.MinInt16)))
	return []string{
		"00A",
		fmt.Sprintf("0: 62 01 01 %02X %02X 00", v>>8, v&0xFF),
		"1: 00 00 00 00 00 00 00",
	}
}
