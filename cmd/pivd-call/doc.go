// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pivd-call sends one calculate_agreement request to a running pivd and
// prints the shared secret as hex.
//
//	pivd-call [--socket PATH] <R1|R2> <hexkey>
//
// hexkey is the peer's 33-byte tagged public key (66 hex characters).
// A 64-character raw X25519 point is accepted and tagged with 0x05.
// Daemon error responses are printed to stderr with exit status 1.
package main
