// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Layout locates a big-endian signed 16-bit value inside a decoded
// response: the value starts Offset bytes after the first occurrence of
// Header.
//
// The offset within long multi-frame responses differs between vehicles
// and adapter firmware, so it is configurable and best-effort.
type Layout struct {
	Header []byte
	Offset int
}

// DefaultPrimaryLayout reads the value immediately after the 62 01 01
// positive-response header.
var DefaultPrimaryLayout = Layout{
	Header: HeaderMotorStatus,
	Offset: 0,
}

// Linear maps a raw byte onto an engineering value: raw*Scale + Offset
type Linear struct {
	Scale  float64
	Offset float64
}

// Apply evaluates the formula and rounds to the nearest integer
func (l Linear) Apply(raw byte) int {
	return int(math.Round(float64(raw)*l.Scale + l.Offset))
}

// VehicleSpeedFormula converts the 010D data byte to km/h
var VehicleSpeedFormula = Linear{Scale: 1, Offset: 0}

// findAfter returns the index just past the first exact match of header
func findAfter(data, header []byte) (int, bool) {
	if len(header) == 0 {
		return 0, false
	}
	idx := bytes.Index(data, header)
	if idx < 0 {
		return 0, false
	}
	return idx + len(header), true
}

// ParsePrimaryValue decodes the signed motor speed from a raw response.
// It returns false when the header is absent or too few bytes follow it;
// that is not an error, it means a different request should be tried.
func ParsePrimaryValue(raw string, layout Layout) (int, bool) {
	return parseInt16(ExtractBytes(raw), layout)
}

func parseInt16(data []byte, layout Layout) (int, bool) {
	start, ok := findAfter(data, layout.Header)
	if !ok || layout.Offset < 0 {
		return 0, false
	}
	if layout.Offset > len(data)-start-2 {
		return 0, false
	}
	start += layout.Offset
	return int(int16(binary.BigEndian.Uint16(data[start : start+2]))), true
}

// ParseLegacyRPM decodes a 41 0C A B response as ((A*256)+B)/4
func ParseLegacyRPM(raw string) (int, bool) {
	data := ExtractBytes(raw)
	start, ok := findAfter(data, HeaderEngineRPM)
	if !ok || start+2 > len(data) {
		return 0, false
	}
	return (int(data[start])*256 + int(data[start+1])) / 4, true
}

// ParseSecondaryValue decodes a 41 0D A response through
// VehicleSpeedFormula
func ParseSecondaryValue(raw string) (int, bool) {
	data := ExtractBytes(raw)
	start, ok := findAfter(data, HeaderVehicleSpeed)
	if !ok || start >= len(data) {
		return 0, false
	}
	return VehicleSpeedFormula.Apply(data[start]), true
}
