// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import "errors"

// ErrSlotEmpty is returned by Agree when the slot holds no usable
// X25519 key.
var ErrSlotEmpty = errors.New("slot has no X25519 key")

// Session is an open transaction with a token.
type Session interface {
	// Agree performs X25519 between the private key in slot and peer,
	// returning the PointSize-byte shared secret. The call blocks until
	// the token answers.
	Agree(slot Slot, peer [PointSize]byte) ([]byte, error)

	// Close ends the transaction and releases the device.
	Close() error
}
