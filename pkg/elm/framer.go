// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import "strings"

// Framer turns the adapter's unstructured byte stream into discrete
// responses. Bytes accumulate until the prompt character; the accumulated
// text (prompt stripped) is then delivered and the buffer cleared.
type Framer struct {
	buffer    []byte
	overflows uint64
}

// NewFramer creates a new response framer
func NewFramer() *Framer {
	return &Framer{
		buffer: make([]byte, 0, 128),
	}
}

// Reset discards any partially accumulated response
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
}

// Buffered returns the number of bytes waiting for a terminator
func (f *Framer) Buffered() int {
	return len(f.buffer)
}

// Overflows returns how many times the buffer was dropped for exceeding
// MaxResponseSize
func (f *Framer) Overflows() uint64 {
	return f.overflows
}

// Push processes a single byte. It returns the completed response and true
// when b is the prompt character.
func (f *Framer) Push(b byte) (string, bool) {
	if b == Prompt {
		response := cleanResponse(f.buffer)
		f.buffer = f.buffer[:0]
		return response, true
	}

	// Some clones emit NULs after a reset
	if b == 0x00 {
		return "", false
	}

	if len(f.buffer) >= MaxResponseSize {
		f.overflows++
		f.buffer = f.buffer[:0]
	}
	f.buffer = append(f.buffer, b)
	return "", false
}

// Write pushes every byte in p and returns the responses completed by it
func (f *Framer) Write(p []byte) []string {
	var responses []string
	for _, b := range p {
		if r, ok := f.Push(b); ok {
			responses = append(responses, r)
		}
	}
	return responses
}

// cleanResponse trims surrounding line breaks and spaces
func cleanResponse(buf []byte) string {
	return strings.Trim(string(buf), " \t\r\n")
}
