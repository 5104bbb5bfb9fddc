// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sound

// RenderGraph creates and runs looping audio sources.
type RenderGraph interface {
	// NewLoopingSource attaches a source that loops samples forever. It is
	// silent until started.
	NewLoopingSource(label string, samples []float32) (Source, error)

	Start() error
	Stop() error
}

// Source is one looping voice in a RenderGraph.
type Source interface {
	Start()
	// Stop halts the source and detaches it from its graph.
	Stop()
	SetGain(gain float32)
	SetPlaybackRate(rate float32)
}

// SampleLoader decodes a layer source into mono samples at the graph's
// sample rate.
type SampleLoader interface {
	Load(source string) ([]float32, error)
}
