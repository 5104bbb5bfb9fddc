// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/rumble/pkg/elm"
)

// DefaultSettle is the pause enforced between consecutive writes.
const DefaultSettle = 100 * time.Millisecond

// Writer is the outbound half of a transport.
type Writer interface {
	Write(p []byte) error
}

// Decoder inspects a response for Exchange. A non-nil *Error is recorded
// on the transaction and returned to the caller.
type Decoder func(response string) *Error

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Settle is the minimum gap between the resolution of one request and
	// the write of the next. Zero selects DefaultSettle; negative disables.
	Settle time.Duration

	History *History
	Stats   *Statistics
	Session uuid.UUID
	Logger  *slog.Logger
}

type result struct {
	response string
	err      *Error
}

// request is one caller's place in the queue.
type request struct {
	cmd   elm.Command
	ready chan struct{} // closed when the request may write
	abort *Error        // set before ready is closed on Detach
	resp  chan result   // buffered; receives the framed response
}

// Queue serializes commands onto a single adapter link. At most one
// request is in flight; later callers wait in FIFO order and their bytes
// are not written until the previous request resolves plus the settle
// delay.
type Queue struct {
	log     *slog.Logger
	settle  time.Duration
	history *History
	stats   *Statistics
	session uuid.UUID

	mu        sync.Mutex
	writer    Writer
	framer    *elm.Framer
	overflows uint64
	busy      bool
	inflight  *request
	waiters   []*request
	nextWrite time.Time
}

// NewQueue creates a detached queue.
func NewQueue(opts QueueOptions) *Queue {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch {
	case opts.Settle == 0:
		opts.Settle = DefaultSettle
	case opts.Settle < 0:
		opts.Settle = 0
	}
	if opts.History == nil {
		opts.History = NewHistory(HistoryCapacity, opts.Logger)
	}
	if opts.Stats == nil {
		opts.Stats = NewStatistics()
	}
	return &Queue{
		log:     opts.Logger,
		settle:  opts.Settle,
		history: opts.History,
		stats:   opts.Stats,
		session: opts.Session,
		framer:  elm.NewFramer(),
	}
}

// History returns the transaction history the queue appends to.
func (q *Queue) History() *History {
	return q.history
}

// Attach binds the queue to an open link.
func (q *Queue) Attach(w Writer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.writer = w
	q.framer.Reset()
}

// Attached reports whether a link is bound.
func (q *Queue) Attached() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writer != nil
}

// Detach unbinds the link. The in-flight request and every waiter fail
// with NotConnected.
func (q *Queue) Detach() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.writer = nil
	q.framer.Reset()

	if q.inflight != nil {
		q.inflight.resp <- result{err: newError(KindNotConnected, q.inflight.cmd.Text, nil)}
		q.inflight = nil
	}
	for _, w := range q.waiters {
		w.abort = newError(KindNotConnected, w.cmd.Text, nil)
		close(w.ready)
	}
	q.waiters = nil
}

// Feed pushes inbound bytes through the framer. A completed response
// resolves the in-flight request; one that arrives with nothing in flight
// is stale and dropped.
func (q *Queue) Feed(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, response := range q.framer.Write(chunk) {
		if q.inflight == nil {
			q.stats.RecordStale()
			q.log.Debug("dropping stale response", "response", elm.FormatResponse(response))
			continue
		}
		q.inflight.resp <- result{response: response}
		q.inflight = nil
	}
	if n := q.framer.Overflows(); n > q.overflows {
		q.stats.RecordOverflows(n - q.overflows)
		q.log.Warn("response buffer overflow", "count", n)
		q.overflows = n
	}
}

// Execute sends cmd and waits for its response.
func (q *Queue) Execute(ctx context.Context, cmd elm.Command) (string, error) {
	return q.Exchange(ctx, cmd, nil)
}

// Exchange sends cmd, waits for its response and runs decode on it. The
// outcome, including any decode failure, is recorded in the history.
//
// Cancelling ctx abandons a request still waiting for its turn. Once
// written, a request runs to its response or timeout.
func (q *Queue) Exchange(ctx context.Context, cmd elm.Command, decode Decoder) (string, error) {
	if cmd.Timeout <= 0 {
		cmd.Timeout = elm.SetupTimeout
	}

	req := &request{
		cmd:   cmd,
		ready: make(chan struct{}),
		resp:  make(chan result, 1),
	}
	if err := q.acquire(ctx, req); err != nil {
		if e, ok := err.(*Error); ok {
			q.record(cmd, "", time.Now(), 0, e)
			return "", e
		}
		q.record(cmd, "", time.Now(), 0, newError(KindCancelled, cmd.Text, err))
		return "", err
	}
	defer q.release(cmd.Settle)

	if err := q.waitSettle(ctx); err != nil {
		q.record(cmd, "", time.Now(), 0, newError(KindCancelled, cmd.Text, err))
		return "", err
	}

	q.mu.Lock()
	w := q.writer
	if w == nil {
		q.mu.Unlock()
		e := newError(KindNotConnected, cmd.Text, nil)
		q.record(cmd, "", time.Now(), 0, e)
		return "", e
	}
	// Anything still buffered belongs to an earlier, resolved request.
	q.framer.Reset()
	q.inflight = req
	q.mu.Unlock()

	start := time.Now()
	if err := w.Write(cmd.Wire()); err != nil {
		q.mu.Lock()
		if q.inflight == req {
			q.inflight = nil
		}
		q.mu.Unlock()
		e := newError(KindWriteFailed, cmd.Text, err)
		q.record(cmd, "", start, time.Since(start), e)
		return "", e
	}

	timer := time.NewTimer(cmd.Timeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-req.resp:
	case <-timer.C:
		q.mu.Lock()
		if q.inflight == req {
			q.inflight = nil
			q.framer.Reset()
			res.err = newError(KindTimeout, cmd.Text, nil)
		} else {
			// Resolved while the timer fired.
			res = <-req.resp
		}
		q.mu.Unlock()
	}

	if res.err == nil && decode != nil {
		res.err = decode(res.response)
		if res.err != nil && res.err.Command == "" {
			res.err.Command = cmd.Text
		}
	}
	q.record(cmd, res.response, start, time.Since(start), res.err)
	if res.err != nil {
		return res.response, res.err
	}
	return res.response, nil
}

// acquire waits for req's turn to write.
func (q *Queue) acquire(ctx context.Context, req *request) error {
	q.mu.Lock()
	if q.writer == nil {
		q.mu.Unlock()
		return newError(KindNotConnected, req.cmd.Text, nil)
	}
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	q.waiters = append(q.waiters, req)
	q.mu.Unlock()

	select {
	case <-req.ready:
		if req.abort != nil {
			return req.abort
		}
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == req {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// The turn was handed over concurrently; pass it on.
		<-req.ready
		if req.abort == nil {
			q.release(0)
		}
		return ctx.Err()
	}
}

// release hands the turn to the next waiter and starts the settle delay,
// extended to settle when that is longer. The delay is in place before the
// next waiter wakes.
func (q *Queue) release(settle time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t := time.Now().Add(max(q.settle, settle)); t.After(q.nextWrite) {
		q.nextWrite = t
	}
	if len(q.waiters) == 0 {
		q.busy = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next.ready)
}

func (q *Queue) waitSettle(ctx context.Context) error {
	q.mu.Lock()
	wait := time.Until(q.nextWrite)
	q.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) record(cmd elm.Command, response string, at time.Time, d time.Duration, err *Error) {
	kind := KindNone
	if err != nil {
		kind = err.Kind
	}
	q.stats.Update(kind)
	q.history.Append(Transaction{
		Session:  q.session,
		Command:  cmd.Text,
		Response: response,
		At:       at,
		Duration: d,
		Err:      err != nil,
		Kind:     kind,
	})
	if err != nil && kind != KindParseFailure && kind != KindNoData {
		q.log.Debug("transaction failed", "command", cmd.Text, "kind", kind)
	}
}
