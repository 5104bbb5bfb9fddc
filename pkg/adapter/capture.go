// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	captureEncMode cbor.EncMode
	captureDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	captureEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	captureDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// ErrCaptureClosed is returned by Record after Close.
var ErrCaptureClosed = errors.New("capture: closed")

// CaptureFile appends transactions to a file as a stream of CBOR items.
// It is safe for concurrent use.
type CaptureFile struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewCaptureFile opens path for appending, creating it if needed.
func NewCaptureFile(path string) (*CaptureFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &CaptureFile{
		file:    f,
		encoder: captureEncMode.NewEncoder(f),
	}, nil
}

// Record writes tx to the file.
func (c *CaptureFile) Record(tx Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCaptureClosed
	}
	return c.encoder.Encode(tx)
}

// Close closes the file. Further Record calls fail.
func (c *CaptureFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

var _ Recorder = (*CaptureFile)(nil)

// CaptureReader iterates over a capture stream.
type CaptureReader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// OpenCapture opens a capture file for reading.
func OpenCapture(path string) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &CaptureReader{decoder: captureDecMode.NewDecoder(f), closer: f}, nil
}

// NewCaptureReader reads a capture stream from r.
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{decoder: captureDecMode.NewDecoder(r)}
}

// Next returns the next transaction, or io.EOF at the end of the stream.
func (r *CaptureReader) Next() (Transaction, error) {
	var tx Transaction
	if err := r.decoder.Decode(&tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Close releases the underlying file, if any.
func (r *CaptureReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadCapture loads every transaction in the file at path.
func ReadCapture(path string) ([]Transaction, error) {
	r, err := OpenCapture(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Transaction
	for {
		tx, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("corrupt capture after %d transactions: %w", len(out), err)
		}
		out = append(out, tx)
	}
}
