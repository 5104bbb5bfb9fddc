// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

// PhaseKind is the connection lifecycle stage.
type PhaseKind uint8

const (
	PhaseDisconnected PhaseKind = iota
	PhaseScanning
	PhaseConnecting
	PhaseConnected
	PhaseInitializing
	PhaseReady
	PhaseFailed
)

// String returns a human-readable phase name.
func (k PhaseKind) String() string {
	switch k {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseScanning:
		return "SCANNING"
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseConnected:
		return "CONNECTED"
	case PhaseInitializing:
		return "INITIALIZING"
	case PhaseReady:
		return "READY"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Phase is the connection phase. Reason is set for PhaseFailed.
type Phase struct {
	Kind   PhaseKind
	Reason string
}

// Failed returns a PhaseFailed with the given reason.
func Failed(reason string) Phase {
	return Phase{Kind: PhaseFailed, Reason: reason}
}

func (p Phase) String() string {
	if p.Kind == PhaseFailed && p.Reason != "" {
		return p.Kind.String() + ": " + p.Reason
	}
	return p.Kind.String()
}

// Live reports whether the phase holds an open link.
func (p Phase) Live() bool {
	switch p.Kind {
	case PhaseConnected, PhaseInitializing, PhaseReady:
		return true
	}
	return false
}
