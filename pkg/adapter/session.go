// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/rumble/pkg/elm"
	"github.com/Thermoquad/rumble/pkg/telemetry"
	"github.com/Thermoquad/rumble/pkg/transport"
)

// Session errors.
var (
	ErrAlreadyConnected = errors.New("adapter: session already connected")
	ErrLinkLost         = errors.New("adapter: link lost")
)

const connectEventTimeout = 5 * time.Second

// Pairing remembers the last endpoint a session connected to.
type Pairing interface {
	Remember(ep transport.Endpoint) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Transport transport.Transport
	Register  *telemetry.Register
	Pairing   Pairing

	Settle    time.Duration
	Init      InitOptions
	Poll      PollerOptions
	Backoff   BackoffConfig
	Recorders []Recorder

	// SkipInit leaves the adapter as found; the phase goes straight to
	// Ready after the link opens.
	SkipInit bool

	// NoPoll connects and initializes without starting the poller.
	NoPoll bool

	Logger *slog.Logger
}

// connection is the state owned by one open link.
type connection struct {
	endpoint transport.Endpoint
	cancel   context.CancelFunc
	lost     chan struct{}
	pumpDone chan struct{}
	pollDone chan struct{}
	closing  bool
}

// Session owns one adapter link and everything bound to it: the command
// queue, the initializer, the poller and the connection phase. Only one
// link is live at a time.
type Session struct {
	id        uuid.UUID
	transport transport.Transport
	register  *telemetry.Register
	pairing   Pairing
	opts      SessionOptions
	log       *slog.Logger

	history *History
	stats   *Statistics
	queue   *Queue
	init    *Initializer
	poller  *Poller
	results chan PollResult

	mu       sync.Mutex
	phase    Phase
	watchers []func(Phase)
	conn     *connection
	busy     bool
}

// NewSession creates a disconnected session.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Transport == nil {
		return nil, errors.New("adapter: transport required")
	}
	if opts.Register == nil {
		opts.Register = telemetry.NewRegister()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:        uuid.New(),
		transport: opts.Transport,
		register:  opts.Register,
		pairing:   opts.Pairing,
		opts:      opts,
		stats:     NewStatistics(),
		results:   make(chan PollResult, 16),
	}
	s.log = opts.Logger.With("session", s.id.String())
	s.history = NewHistory(HistoryCapacity, s.log)
	for _, r := range opts.Recorders {
		s.history.AddRecorder(r)
	}

	s.queue = NewQueue(QueueOptions{
		Settle:  opts.Settle,
		History: s.history,
		Stats:   s.stats,
		Session: s.id,
		Logger:  s.log,
	})

	initOpts := opts.Init
	initOpts.Logger = s.log
	initOpts.OnPhase = s.initPhase
	s.init = NewInitializer(s.queue, initOpts)

	pollOpts := opts.Poll
	pollOpts.Heal = s.init.Run
	pollOpts.Stats = s.stats
	pollOpts.Logger = s.log
	s.poller = NewPoller(s.queue, s.register, pollOpts)

	return s, nil
}

// ID returns the session identifier stamped on its transactions.
func (s *Session) ID() uuid.UUID { return s.id }

// Register returns the telemetry register the poller writes.
func (s *Session) Register() *telemetry.Register { return s.register }

// History returns the transaction history.
func (s *Session) History() *History { return s.history }

// Stats returns a snapshot of the session statistics.
func (s *Session) Stats() Counters { return s.stats.Snapshot() }

// Statistics returns the live statistics tracker.
func (s *Session) Statistics() *Statistics { return s.stats }

// Poller returns the session's poller.
func (s *Session) Poller() *Poller { return s.poller }

// Results delivers poll results. Results are dropped when nobody reads.
func (s *Session) Results() <-chan PollResult { return s.results }

// AdapterID returns the identifier reported by the last reset.
func (s *Session) AdapterID() string { return s.init.AdapterID() }

// Phase returns the current connection phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Endpoint returns the connected endpoint, if any.
func (s *Session) Endpoint() (transport.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return transport.Endpoint{}, false
	}
	return s.conn.endpoint, true
}

// OnPhaseChange registers fn to be called on every phase transition.
func (s *Session) OnPhaseChange(fn func(Phase)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	if s.phase == p {
		s.mu.Unlock()
		return
	}
	s.phase = p
	watchers := append([]func(Phase){}, s.watchers...)
	s.mu.Unlock()

	s.log.Info("phase changed", "phase", p.String())
	for _, fn := range watchers {
		fn(p)
	}
}

// initPhase forwards initializer phases while a link is open.
func (s *Session) initPhase(p Phase) {
	s.mu.Lock()
	live := s.conn != nil && !s.conn.closing
	s.mu.Unlock()
	if live {
		s.setPhase(p)
	}
}

// Scan lists endpoints the transport can reach.
func (s *Session) Scan(ctx context.Context, filter transport.Filter) ([]transport.Endpoint, error) {
	s.mu.Lock()
	idle := s.conn == nil && !s.busy
	s.mu.Unlock()
	if idle {
		s.setPhase(Phase{Kind: PhaseScanning})
		defer s.setPhase(Phase{Kind: PhaseDisconnected})
	}

	ch, err := s.transport.Scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	var eps []transport.Endpoint
	for ep := range ch {
		eps = append(eps, ep)
	}
	return eps, ctx.Err()
}

// Connect opens ep, initializes the adapter and starts polling.
func (s *Session) Connect(ctx context.Context, ep transport.Endpoint) error {
	s.mu.Lock()
	if s.conn != nil || s.busy {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.setPhase(Phase{Kind: PhaseConnecting})
	s.log.Info("connecting", "endpoint", ep.String())

	events, err := s.transport.Connect(ctx, ep)
	if err != nil {
		s.setPhase(Failed(err.Error()))
		return fmt.Errorf("connect %s: %w", ep, err)
	}
	if err := awaitConnected(ctx, events); err != nil {
		_ = s.transport.Close()
		s.setPhase(Failed(err.Error()))
		return fmt.Errorf("connect %s: %w", ep, err)
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		endpoint: ep,
		cancel:   cancel,
		lost:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	s.queue.Attach(s.transport)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.pump(conn, events)

	s.setPhase(Phase{Kind: PhaseConnected})

	if s.pairing != nil {
		if err := s.pairing.Remember(ep); err != nil {
			s.log.Warn("failed to remember endpoint", "error", err)
		}
	}

	if s.opts.SkipInit {
		s.setPhase(Phase{Kind: PhaseReady})
	} else if err := s.init.Run(ctx); err != nil {
		s.teardown(conn)
		s.setPhase(Failed(err.Error()))
		return fmt.Errorf("initialize: %w", err)
	}

	if !s.opts.NoPoll {
		conn.pollDone = make(chan struct{})
		go func() {
			defer close(conn.pollDone)
			err := s.poller.Run(linkCtx, s.results)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Debug("poller stopped", "error", err)
			}
		}()
	}
	return nil
}

func awaitConnected(ctx context.Context, events <-chan transport.Event) error {
	timer := time.NewTimer(connectEventTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return ErrLinkLost
			}
			switch ev.Kind {
			case transport.EventConnected:
				return nil
			case transport.EventDisconnected:
				if ev.Err != nil {
					return ev.Err
				}
				return ErrLinkLost
			}
		case <-timer.C:
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pump feeds inbound bytes to the queue until the link goes down.
func (s *Session) pump(conn *connection, events <-chan transport.Event) {
	defer close(conn.pumpDone)

	var reason error
	for ev := range events {
		switch ev.Kind {
		case transport.EventData:
			s.queue.Feed(ev.Data)
		case transport.EventDisconnected:
			reason = ev.Err
		}
	}

	s.queue.Detach()

	s.mu.Lock()
	closing := conn.closing
	s.mu.Unlock()
	if closing {
		return
	}

	if reason == nil {
		reason = ErrLinkLost
	}
	s.log.Warn("link lost", "error", reason)
	s.setPhase(Failed("link lost: " + reason.Error()))
	close(conn.lost)
}

// Lost returns a channel closed when the current link drops on its own.
// It returns nil when no link is open.
func (s *Session) Lost() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.lost
}

// teardown stops everything bound to conn and closes the transport.
func (s *Session) teardown(conn *connection) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	conn.closing = true
	s.mu.Unlock()

	conn.cancel()
	s.queue.Detach()
	if err := s.transport.Close(); err != nil {
		s.log.Debug("transport close failed", "error", err)
	}
	<-conn.pumpDone
	if conn.pollDone != nil {
		<-conn.pollDone
	}
	s.poller.Wait()

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
}

// Disconnect stops polling, closes the link and clears session telemetry.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.teardown(conn)
	}
	s.register.Reset()
	s.setPhase(Phase{Kind: PhaseDisconnected})
}

// Raw sends text verbatim and returns the adapter's response.
func (s *Session) Raw(ctx context.Context, text string) (string, error) {
	return s.queue.Execute(ctx, elm.Raw(text))
}

// Execute sends cmd through the session's queue.
func (s *Session) Execute(ctx context.Context, cmd elm.Command) (string, error) {
	return s.queue.Execute(ctx, cmd)
}

// Run keeps the session connected to ep until ctx is done, reconnecting
// with exponential backoff after failures and link loss. The telemetry
// register keeps its last value across reconnects.
func (s *Session) Run(ctx context.Context, ep transport.Endpoint) error {
	backoff := NewBackoff(s.opts.Backoff)
	attempt := 0

	for {
		err := s.Connect(ctx, ep)
		if errors.Is(err, ErrAlreadyConnected) {
			return err
		}
		if err == nil {
			if attempt > 0 {
				s.stats.RecordReconnect()
			}
			backoff.Reset()
			attempt++

			select {
			case <-ctx.Done():
				s.Disconnect()
				return ctx.Err()
			case <-s.Lost():
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					s.teardown(conn)
				}
			}
		} else {
			if ctx.Err() != nil {
				s.Disconnect()
				return ctx.Err()
			}
			attempt++
			s.log.Warn("connection attempt failed", "attempt", attempt, "error", err)
		}

		delay := backoff.Next()
		s.log.Info("reconnecting", "in", delay.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			s.Disconnect()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
