// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package token is the boundary between pivd and the device that holds
// the X25519 private keys.
//
// A [Session] is one open transaction with a token. The daemon opens
// exactly one at startup and uses it, strictly sequentially, for every
// request until it exits. Sessions are not safe for concurrent use; the
// daemon's accept loop is what keeps calls sequential.
//
// Two backends implement Session:
//
//   - Package pivtoken talks to a PIV smart card (YubiKey 5.7+ for
//     X25519) over PC/SC. The private keys never leave the card. It is a
//     separate package so that only the daemon binary needs cgo.
//   - [OpenSoftware] reads slot keys from a YAML file, optionally age
//     encrypted, for development machines and tests.
//
// Only the retired key-management slots R1 (0x82) and R2 (0x83) are
// addressable; see [Slot].
package token
