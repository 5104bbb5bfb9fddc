// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/rumble/pkg/elm"
)

// txEntry is one write observed by mockLink.
type txEntry struct {
	cmd string
	at  time.Time
}

// mockLink records every write and optionally answers through the queue.
type mockLink struct {
	mu      sync.Mutex
	txLog   []txEntry
	feedLog []time.Time

	queue   *Queue
	delay   time.Duration
	respond func(cmd string) (string, bool)
	failing bool
}

func newMockLink(q *Queue) *mockLink {
	m := &mockLink{queue: q}
	q.Attach(m)
	return m
}

func (m *mockLink) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("link write failed")
	}
	cmd := strings.TrimSuffix(string(p), "\r")
	m.txLog = append(m.txLog, txEntry{cmd: cmd, at: time.Now()})

	if m.respond == nil {
		return nil
	}
	reply, ok := m.respond(cmd)
	if !ok {
		return nil
	}
	go func() {
		time.Sleep(m.delay)
		m.mu.Lock()
		m.feedLog = append(m.feedLog, time.Now())
		m.mu.Unlock()
		m.queue.Feed([]byte(reply + "\r\r>"))
	}()
	return nil
}

func (m *mockLink) writes() []txEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]txEntry(nil), m.txLog...)
}

func (m *mockLink) commands() []string {
	var out []string
	for _, e := range m.writes() {
		out = append(out, e.cmd)
	}
	return out
}

func (m *mockLink) feeds() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.feedLog...)
}

// answerAll replies to every command with the given text.
func answerAll(reply string) func(string) (string, bool) {
	return func(string) (string, bool) { return reply, true }
}

// outcome is one scripted exchange result.
type outcome struct {
	response string
	err      error
}

// scriptedExchanger plays back outcomes per command text, the last
// outcome repeating once a script runs out.
type scriptedExchanger struct {
	mu      sync.Mutex
	scripts map[string][]outcome
	seen    []string
}

func newScriptedExchanger() *scriptedExchanger {
	return &scriptedExchanger{scripts: make(map[string][]outcome)}
}

func (s *scriptedExchanger) script(cmd string, outs ...outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[cmd] = append(s.scripts[cmd], outs...)
}

func (s *scriptedExchanger) Exchange(ctx context.Context, cmd elm.Command, decode Decoder) (string, error) {
	s.mu.Lock()
	s.seen = append(s.seen, cmd.Text)
	outs := s.scripts[cmd.Text]
	var out outcome
	switch len(outs) {
	case 0:
		out = outcome{err: newError(KindTimeout, cmd.Text, nil)}
	case 1:
		out = outs[0]
	default:
		out = outs[0]
		s.scripts[cmd.Text] = outs[1:]
	}
	s.mu.Unlock()

	if out.err != nil {
		return "", out.err
	}
	if decode != nil {
		if e := decode(out.response); e != nil {
			e.Command = cmd.Text
			return out.response, e
		}
	}
	return out.response, nil
}

func (s *scriptedExchanger) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func reply(response string) outcome { return outcome{response: response} }

func failure(kind ErrorKind) outcome { return outcome{err: newError(kind, "", nil)} }
