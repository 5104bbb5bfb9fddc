// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/rumble/pkg/transport"
)

// PairingKey holds the last paired endpoint.
const PairingKey = "pairing:last"

// Pairing remembers the last endpoint a session connected to. It
// satisfies adapter.Pairing.
type Pairing struct {
	store Store
}

func NewPairing(s Store) *Pairing {
	return &Pairing{store: s}
}

// Remember stores ep as the last paired endpoint.
func (p *Pairing) Remember(ep transport.Endpoint) error {
	data, err := cbor.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode endpoint: %w", err)
	}
	return p.store.Set(context.Background(), PairingKey, data)
}

// Last returns the last paired endpoint. ok is false when nothing has been
// paired yet.
func (p *Pairing) Last(ctx context.Context) (ep transport.Endpoint, ok bool, err error) {
	data, err := p.store.Get(ctx, PairingKey)
	if errors.Is(err, ErrNotFound) {
		return transport.Endpoint{}, false, nil
	}
	if err != nil {
		return transport.Endpoint{}, false, err
	}
	if err := cbor.Unmarshal(data, &ep); err != nil {
		return transport.Endpoint{}, false, fmt.Errorf("decode endpoint: %w", err)
	}
	return ep, true, nil
}

// Forget clears the last paired endpoint.
func (p *Pairing) Forget(ctx context.Context) error {
	return p.store.Delete(ctx, PairingKey)
}
