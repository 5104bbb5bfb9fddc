// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry holds the latest decoded motor telemetry.
//
// The Register is a single atomic slot written by the polling loop and read
// by the sound engine at frame rate. Readers always see a whole sample and
// never block the writer.
package telemetry

import (
	"sync/atomic"
	"time"
)

// Sample is one snapshot of decoded telemetry.
type Sample struct {
	// Speed is the signed motor speed. Negative values occur during
	// regeneration; consumers use the magnitude.
	Speed int

	// VehicleSpeed is the road speed in km/h, valid when HasVehicleSpeed
	// is set.
	VehicleSpeed    int
	HasVehicleSpeed bool

	At time.Time
}

// Register is the latest-value slot shared between the poller and the
// sound engine. The zero value is empty and ready to use.
type Register struct {
	slot atomic.Pointer[Sample]

	// now is replaced in tests
	now func() time.Time
}

// NewRegister returns an empty register.
func NewRegister() *Register {
	return &Register{}
}

// Store replaces the whole sample.
func (r *Register) Store(s Sample) {
	if s.At.IsZero() {
		s.At = r.clock()
	}
	r.slot.Store(&s)
}

// Load returns the latest sample and whether one has been stored.
func (r *Register) Load() (Sample, bool) {
	p := r.slot.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

// Speed returns the latest motor speed, or zero when empty.
func (r *Register) Speed() int {
	s, _ := r.Load()
	return s.Speed
}

// UpdateSpeed records a new motor speed, keeping the secondary channel.
// Only the polling loop writes, so the read-modify-write needs no lock.
func (r *Register) UpdateSpeed(v int) {
	s, _ := r.Load()
	s.Speed = v
	s.At = r.clock()
	r.slot.Store(&s)
}

// UpdateVehicleSpeed records a new road speed, keeping the motor speed.
func (r *Register) UpdateVehicleSpeed(kph int) {
	s, _ := r.Load()
	s.VehicleSpeed = kph
	s.HasVehicleSpeed = true
	s.At = r.clock()
	r.slot.Store(&s)
}

// Reset empties the register.
func (r *Register) Reset() {
	r.slot.Store(nil)
}

// Age returns how long ago the latest sample was stored.
func (r *Register) Age() (time.Duration, bool) {
	s, ok := r.Load()
	if !ok {
		return 0, false
	}
	return r.clock().Sub(s.At), true
}

func (r *Register) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
