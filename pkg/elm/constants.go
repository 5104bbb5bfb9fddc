// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package elm implements the ASCII command/response protocol spoken by
// ELM327-compatible OBD adapters.
//
// Commands are ASCII text terminated by a carriage return. Responses are
// free-form text, possibly spanning several lines, terminated by the '>'
// prompt character. This package provides command builders, a response
// framer, hex extraction tolerant of multi-frame quirks, telemetry parsers,
// and control-response classifiers.
package elm

import "time"

// Wire framing
const (
	CommandTerminator = '\r'
	Prompt            = '>'
)

// Framer limits
const (
	MaxResponseSize = 4096
)

// Default command timeouts
const (
	ResetTimeout     = 2 * time.Second
	SetupTimeout     = 1 * time.Second
	TelemetryTimeout = 1 * time.Second
)

// Protocol numbers accepted by ATSP
const (
	ProtocolAuto        = "0"
	ProtocolCAN11Bit500 = "6"
	ProtocolCAN29Bit500 = "7"
	ProtocolCAN11Bit250 = "8"
	ProtocolCAN29Bit250 = "9"
)

// Request identifiers
const (
	PIDEngineRPM    = "010C"
	PIDVehicleSpeed = "010D"
	DIDMotorStatus  = "220101"
)

// Response headers (positive responses to the requests above)
var (
	HeaderMotorStatus  = []byte{0x62, 0x01, 0x01}
	HeaderEngineRPM    = []byte{0x41, 0x0C}
	HeaderVehicleSpeed = []byte{0x41, 0x0D}
)

// DefaultHeader is the CAN header of the ECU that answers DIDMotorStatus.
const DefaultHeader = "7E4"
