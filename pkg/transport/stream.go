// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	eventBuffer      = 64
	readBufferSize   = 256
	finalEventWindow = time.Second
)

// streamLink turns an io.ReadWriteCloser into an event stream. One reader
// goroutine owns Read; Write and Close may be called from any goroutine.
type streamLink struct {
	rwc    io.ReadWriteCloser
	events chan Event
	done   chan struct{}
	log    *slog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	onExit    func(*streamLink)
}

func newStreamLink(rwc io.ReadWriteCloser, logger *slog.Logger, onExit func(*streamLink)) *streamLink {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamLink{
		rwc:    rwc,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		log:    logger,
		onExit: onExit,
	}
}

func (l *streamLink) start() {
	l.events <- Event{Kind: EventConnected, At: time.Now()}
	go l.readLoop()
}

func (l *streamLink) readLoop() {
	defer close(l.events)
	if l.onExit != nil {
		defer l.onExit(l)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case l.events <- Event{Kind: EventData, Data: data, At: time.Now()}:
			case <-l.done:
			}
		}

		if l.isClosed() {
			l.finish(nil)
			return
		}
		if err != nil {
			l.log.Debug("link read failed", "error", err)
			_ = l.shutdown()
			l.finish(err)
			return
		}
	}
}

// finish delivers the final event. A consumer that has stopped reading
// gets a short window before the event is dropped.
func (l *streamLink) finish(err error) {
	select {
	case l.events <- Event{Kind: EventDisconnected, Err: err, At: time.Now()}:
	case <-time.After(finalEventWindow):
	}
}

func (l *streamLink) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *streamLink) write(p []byte) error {
	if l.isClosed() {
		return ErrNotOpen
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	n, err := l.rwc.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

func (l *streamLink) shutdown() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.closeErr = l.rwc.Close()
	})
	return l.closeErr
}

// base holds the link currently open on a Transport implementation.
type base struct {
	mu   sync.Mutex
	link *streamLink
	log  *slog.Logger
}

func (b *base) open(rwc io.ReadWriteCloser) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link != nil {
		_ = rwc.Close()
		return nil, ErrAlreadyOpen
	}
	l := newStreamLink(rwc, b.log, b.release)
	b.link = l
	l.start()
	return l.events, nil
}

// busy reports whether a link is open.
func (b *base) busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link != nil
}

func (b *base) release(l *streamLink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == l {
		b.link = nil
	}
}

// Write sends p on the open link.
func (b *base) Write(p []byte) error {
	b.mu.Lock()
	l := b.link
	b.mu.Unlock()
	if l == nil {
		return ErrNotOpen
	}
	return l.write(p)
}

// Close closes the open link.
func (b *base) Close() error {
	b.mu.Lock()
	l := b.link
	b.link = nil
	b.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.shutdown()
}
