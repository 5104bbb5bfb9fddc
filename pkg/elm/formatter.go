// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import (
	"fmt"
	"strings"
)

// FormatResponse renders a raw response on a single printable line. Line
// breaks become " | " and other control characters are shown as hex.
func FormatResponse(raw string) string {
	lines := strings.FieldsFunc(raw, func(r rune) bool { return r == '\r' || r == '\n' })
	for i, line := range lines {
		var b strings.Builder
		for _, r := range strings.TrimSpace(line) {
			if r < 0x20 || r == 0x7F {
				fmt.Fprintf(&b, "\\x%02X", r)
				continue
			}
			b.WriteRune(r)
		}
		lines[i] = b.String()
	}
	if len(lines) == 0 {
		return "(empty)"
	}
	return strings.Join(lines, " | ")
}

// FormatHex renders bytes as a spaced hex dump, 16 bytes per row
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			if i%16 == 0 {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// DescribeValues returns a summary of every telemetry value that can be
// decoded from raw, for diagnostics output
func DescribeValues(raw string, layout Layout) []string {
	var out []string
	if v, ok := ParsePrimaryValue(raw, layout); ok {
		out = append(out, fmt.Sprintf("motor speed: %d rpm", v))
	}
	if v, ok := ParseLegacyRPM(raw); ok {
		out = append(out, fmt.Sprintf("engine speed: %d rpm", v))
	}
	if v, ok := ParseSecondaryValue(raw); ok {
		out = append(out, fmt.Sprintf("vehicle speed: %d km/h", v))
	}
	return out
}
