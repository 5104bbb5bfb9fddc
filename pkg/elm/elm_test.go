// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Framer Tests
// ============================================================

func TestFramer_DeliversOnPrompt(t *testing.T) {
	f := NewFramer()

	got := f.Write([]byte("41 0C 1A F8\r\r"))
	assert.Empty(t, got)
	assert.Equal(t, 13, f.Buffered())

	got = f.Write([]byte(">"))
	require.Len(t, got, 1)
	assert.Equal(t, "41 0C 1A F8", got[0])
	assert.Zero(t, f.Buffered(), "buffer should be cleared after delivery")
}

func TestFramer_SplitChunks(t *testing.T) {
	f := NewFramer()
	var got []string
	for _, chunk := range []string{"EL", "M327 v1", ".5\r", "\r>", "OK\r\r>"} {
		got = append(got, f.Write([]byte(chunk))...)
	}
	assert.Equal(t, []string{"ELM327 v1.5", "OK"}, got)
}

func TestFramer_MultipleResponsesInOneChunk(t *testing.T) {
	f := NewFramer()
	got := f.Write([]byte("OK\r>41 0D 32\r>"))
	assert.Equal(t, []string{"OK", "41 0D 32"}, got)
}

func TestFramer_IgnoresNUL(t *testing.T) {
	f := NewFramer()
	got := f.Write([]byte{0x00, 'O', 0x00, 'K', '>'})
	assert.Equal(t, []string{"OK"}, got)
}

func TestFramer_Reset(t *testing.T) {
	f := NewFramer()
	f.Write([]byte("STALE 41 0C"))
	f.Reset()
	got := f.Write([]byte("41 0D 10>"))
	assert.Equal(t, []string{"41 0D 10"}, got)
}

func TestFramer_Overflow(t *testing.T) {
	f := NewFramer()
	f.Write([]byte(strings.Repeat("A", MaxResponseSize+10)))
	assert.Equal(t, uint64(1), f.Overflows())
	assert.Equal(t, 10, f.Buffered())
}

func TestFramer_EmptyResponse(t *testing.T) {
	f := NewFramer()
	got := f.Write([]byte("\r\r>"))
	assert.Equal(t, []string{""}, got)
}

// ============================================================
// Hex Extraction Tests
// ============================================================

func TestExtractBytes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []byte
	}{
		{
			name: "single line with spaces",
			raw:  "41 0C 1A F8",
			want: []byte{0x41, 0x0C, 0x1A, 0xF8},
		},
		{
			name: "spaces off",
			raw:  "410C1AF8",
			want: []byte{0x41, 0x0C, 0x1A, 0xF8},
		},
		{
			name: "lowercase",
			raw:  "41 0c 1a f8",
			want: []byte{0x41, 0x0C, 0x1A, 0xF8},
		},
		{
			name: "frame index prefixes and length header",
			raw:  "03E\r0: 62 01 01 FF F8 12\r1: 34 56 78 9A BC DE F0",
			want: []byte{0x62, 0x01, 0x01, 0xFF, 0xF8, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0},
		},
		{
			name: "short standalone line treated as length header",
			raw:  "41 0D\n32",
			want: []byte{0x41, 0x0D},
		},
		{
			name: "odd trailing nibble dropped",
			raw:  "41 0C 1A F",
			want: []byte{0x41, 0x0C, 0x1A},
		},
		{
			name: "stray characters ignored",
			raw:  "41-0C.1A;F8",
			want: []byte{0x41, 0x0C, 0x1A, 0xF8},
		},
		{
			name: "two digit frame index",
			raw:  "0A: 11 22",
			want: []byte{0x11, 0x22},
		},
		{
			name: "no hex at all",
			raw:  "NO DATA",
			want: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBytes(tt.raw))
		})
	}
}

// ============================================================
// Parser Tests
// ============================================================

func TestParseLegacyRPM(t *testing.T) {
	v, ok := ParseLegacyRPM("41 0C 1A F8")
	require.True(t, ok)
	assert.Equal(t, 1726, v)
}

func TestParseLegacyRPM_WithEcho(t *testing.T) {
	v, ok := ParseLegacyRPM("010C\n41 0C 0F A0")
	require.True(t, ok)
	assert.Equal(t, 1000, v)
}

func TestParseLegacyRPM_Missing(t *testing.T) {
	_, ok := ParseLegacyRPM("41 0C 1A")
	assert.False(t, ok, "insufficient trailing bytes")

	_, ok = ParseLegacyRPM("NO DATA")
	assert.False(t, ok)
}

func TestParsePrimaryValue_MultiFrame(t *testing.T) {
	raw := "03E\r0: 62 01 01 FF F8 12\r1: 34 56 78 9A BC DE F0\r2: 00 00 00 00 00 00 00"

	v, ok := ParsePrimaryValue(raw, DefaultPrimaryLayout)
	require.True(t, ok)
	assert.Equal(t, -8, v, "value is big-endian signed")

	v, ok = ParsePrimaryValue(raw, Layout{Header: HeaderMotorStatus, Offset: 3})
	require.True(t, ok)
	assert.Equal(t, 0x3456, v)
}

func TestParsePrimaryValue_Positive(t *testing.T) {
	v, ok := ParsePrimaryValue("62 01 01 0B B8", DefaultPrimaryLayout)
	require.True(t, ok)
	assert.Equal(t, 3000, v)
}

func TestParsePrimaryValue_FirstMatchWins(t *testing.T) {
	v, ok := ParsePrimaryValue("62 01 01 00 10 62 01 01 00 20", DefaultPrimaryLayout)
	require.True(t, ok)
	assert.Equal(t, 16, v)
}

func TestParsePrimaryValue_None(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		layout Layout
	}{
		{"header absent", "0: 7F 22 31\r1: 00 00", DefaultPrimaryLayout},
		{"insufficient trailing bytes", "62 01 01 FF", DefaultPrimaryLayout},
		{"offset past end", "62 01 01 00 10", Layout{Header: HeaderMotorStatus, Offset: 1}},
		{"negative offset", "62 01 01 00 10", Layout{Header: HeaderMotorStatus, Offset: -1}},
		{"huge offset", "0: 62 01 01 12 34 00", Layout{Header: HeaderMotorStatus, Offset: math.MaxInt}},
		{"empty header", "62 01 01 00 10", Layout{}},
		{"no data", "NO DATA", DefaultPrimaryLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParsePrimaryValue(tt.raw, tt.layout)
			assert.False(t, ok)
		})
	}
}

func TestParseSecondaryValue(t *testing.T) {
	v, ok := ParseSecondaryValue("41 0D 32")
	require.True(t, ok)
	assert.Equal(t, 50, v)

	_, ok = ParseSecondaryValue("41 0D")
	assert.False(t, ok)
}

func TestLinear_Apply(t *testing.T) {
	assert.Equal(t, 60, Linear{Scale: 1, Offset: -40}.Apply(100))
	assert.Equal(t, 50, Linear{Scale: 0.5}.Apply(100))
}

// ============================================================
// Classifier Tests
// ============================================================

func TestClassifiers(t *testing.T) {
	tests := []struct {
		raw        string
		noData     bool
		ok         bool
		identifier bool
	}{
		{"NO DATA", true, false, false},
		{"no data", true, false, false},
		{"SEARCHING...\rUNABLE TO CONNECT", true, false, false},
		{"CAN ERROR", true, false, false},
		{"?", true, false, false},
		{"", true, false, false},
		{"OK", false, true, false},
		{"ok", false, true, false},
		{"ELM327 v1.5", false, false, true},
		{"elm327 v2.1", false, false, true},
		{"41 0C 1A F8", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.noData, IsNoData(tt.raw), "IsNoData")
			assert.Equal(t, tt.ok, IsOK(tt.raw), "IsOK")
			assert.Equal(t, tt.identifier, IsAdapterIdentifier(tt.raw), "IsAdapterIdentifier")
		})
	}
}

func TestAdapterIdentifier(t *testing.T) {
	assert.Equal(t, "ELM327 v1.5", AdapterIdentifier("ATZ\r\rELM327 v1.5\r"))
	assert.Equal(t, "", AdapterIdentifier("OK"))
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatResponse(t *testing.T) {
	assert.Equal(t, "0: 62 01 | 1: 00 10", FormatResponse("0: 62 01\r1: 00 10\r"))
	assert.Equal(t, "(empty)", FormatResponse("\r\r"))
	assert.Equal(t, "A\\x07B", FormatResponse("A\aB"))
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "41 0C 1A F8", FormatHex([]byte{0x41, 0x0C, 0x1A, 0xF8}))
	assert.Equal(t, "(none)", FormatHex(nil))

	data := make([]byte, 17)
	assert.Contains(t, FormatHex(data), "\n")
}

func TestDescribeValues(t *testing.T) {
	got := DescribeValues("41 0C 1A F8", DefaultPrimaryLayout)
	assert.Equal(t, []string{"engine speed: 1726 rpm"}, got)
}
