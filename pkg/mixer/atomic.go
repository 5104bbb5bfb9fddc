// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixer

import (
	"math"
	"sync/atomic"
)

// atomicFloat32 is a float32 stored as its bit pattern so the tick and the
// render loop can share it without a lock.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func newAtomicFloat32(v float32) *atomicFloat32 {
	f := &atomicFloat32{}
	f.Store(v)
	return f
}

func (f *atomicFloat32) Load() float32 {
	return math.Float32frombits(f.bits.Load())
}

func (f *atomicFloat32) Store(v float32) {
	f.bits.Store(math.Float32bits(v))
}
