// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import "strings"

// Lines that carry no frame-index prefix and decode to this many hex digits
// or fewer are treated as ISO-TP length headers (e.g. "03E") and dropped.
const maxLengthHeaderDigits = 3

// ExtractBytes decodes the hex payload of a raw adapter response.
//
// It tolerates the quirks adapters produce on multi-frame responses: each
// line may carry a frame-index prefix ("0:", "1:", ...) which is stripped,
// standalone length-header lines are dropped, non-hex characters are
// ignored, and an odd trailing nibble on a line is dropped rather than
// padded. The remaining lines are concatenated in order.
func ExtractBytes(raw string) []byte {
	lines := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\r' || r == '\n'
	})

	out := make([]byte, 0, len(raw)/2)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		payload, indexed := stripFrameIndex(line)

		digits := hexDigits(payload)
		if !indexed && len(digits) <= maxLengthHeaderDigits {
			continue
		}
		// Drop the odd nibble, never round it
		digits = digits[:len(digits)&^1]
		for i := 0; i < len(digits); i += 2 {
			out = append(out, digits[i]<<4|digits[i+1])
		}
	}
	return out
}

// stripFrameIndex removes a leading "N:" frame index. The index is one or
// two hex digits.
func stripFrameIndex(line string) (string, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 1 || idx > 2 {
		return line, false
	}
	for i := 0; i < idx; i++ {
		if _, ok := hexValue(line[i]); !ok {
			return line, false
		}
	}
	return line[idx+1:], true
}

// hexDigits returns the nibble values of every hex character in s
func hexDigits(s string) []byte {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if v, ok := hexValue(s[i]); ok {
			digits = append(digits, v)
		}
	}
	return digits
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
