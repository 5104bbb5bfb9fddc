// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rumble/pkg/transport"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mem, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	disk, err := OpenBadger(BadgerOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	all := map[string]Store{
		"memory":          NewMemory(),
		"badger/inmemory": mem,
		"badger/disk":     disk,
	}
	t.Cleanup(func() {
		for _, s := range all {
			_ = s.Close()
		}
	})
	return all
}

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "k", []byte("v1")))
			got, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			require.NoError(t, s.Set(ctx, "k", []byte("v2")))
			got, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			require.NoError(t, s.Delete(ctx, "k"))
			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", v))
	v[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[0] = 'y'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", nil), ErrClosed)
	assert.ErrorIs(t, m.Delete(ctx, "k"), ErrClosed)
}

func TestBadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "k", []byte("kept")))
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}

func TestOpenBadgerNeedsDir(t *testing.T) {
	_, err := OpenBadger(BadgerOptions{})
	assert.Error(t, err)
}

func TestPairing(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p := NewPairing(s)

			_, ok, err := p.Last(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			ep := transport.Endpoint{
				Kind:    transport.KindSerial,
				Address: "/dev/ttyUSB0",
				Name:    "FT232R",
				Baud:    38400,
				VID:     "0403",
				PID:     "6001",
				Serial:  "A10K1234",
			}
			require.NoError(t, p.Remember(ep))

			got, ok, err := p.Last(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, ep, got)

			require.NoError(t, p.Forget(ctx))
			_, ok, err = p.Last(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPairingCorruptValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, PairingKey, []byte{0xFF, 0x00}))

	_, _, err := NewPairing(m).Last(ctx)
	assert.ErrorContains(t, err, "decode endpoint")
}
