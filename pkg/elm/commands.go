// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import (
	"strings"
	"time"
)

// Command is a single outbound adapter request. It has no identity beyond
// the one response it is waiting for.
type Command struct {
	Text    string
	Timeout time.Duration

	// Settle is how long the adapter must be left alone after this command
	// resolves, answered or not. The queue uses the longer of this and its
	// own gap.
	Settle time.Duration
}

// Wire returns the bytes written to the transport for this command.
func (c Command) Wire() []byte {
	b := make([]byte, 0, len(c.Text)+1)
	b = append(b, c.Text...)
	return append(b, CommandTerminator)
}

// WithTimeout returns a copy of the command with a different timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// WithSettle returns a copy of the command that holds the link quiet for d
// after it resolves.
func (c Command) WithSettle(d time.Duration) Command {
	c.Settle = d
	return c
}

// String returns the command text.
func (c Command) String() string {
	return c.Text
}

// Command builder functions. Each carries a timeout suited to how long the
// adapter typically takes to answer it.

// Reset creates an ATZ command. The adapter reboots and answers with its
// identifier string.
func Reset() Command {
	return Command{Text: "ATZ", Timeout: ResetTimeout}
}

// EchoOff creates an ATE0 command.
func EchoOff() Command {
	return Command{Text: "ATE0", Timeout: SetupTimeout}
}

// LinefeedOff creates an ATL0 command.
func LinefeedOff() Command {
	return Command{Text: "ATL0", Timeout: SetupTimeout}
}

// SetProtocol creates an ATSP command for the given protocol number.
func SetProtocol(protocol string) Command {
	return Command{Text: "ATSP" + strings.ToUpper(protocol), Timeout: SetupTimeout}
}

// SetHeader creates an ATSH command selecting the CAN header for requests.
func SetHeader(header string) Command {
	return Command{Text: "ATSH" + strings.ToUpper(header), Timeout: SetupTimeout}
}

// Identify creates an ATI command.
func Identify() Command {
	return Command{Text: "ATI", Timeout: SetupTimeout}
}

// PrimaryTelemetry requests the motor status block, which carries signed
// motor speed.
func PrimaryTelemetry() Command {
	return Command{Text: DIDMotorStatus, Timeout: TelemetryTimeout}
}

// SecondaryTelemetry requests vehicle speed.
func SecondaryTelemetry() Command {
	return Command{Text: PIDVehicleSpeed, Timeout: TelemetryTimeout}
}

// FallbackSpeed requests the legacy engine RPM PID, used when the primary
// request is not understood by the vehicle.
func FallbackSpeed() Command {
	return Command{Text: PIDEngineRPM, Timeout: TelemetryTimeout}
}

// Raw creates a passthrough command for diagnostics. Surrounding whitespace
// and any trailing carriage return are removed.
func Raw(text string) Command {
	text = strings.TrimSpace(strings.TrimRight(text, "\r\n"))
	return Command{Text: text, Timeout: TelemetryTimeout}
}
