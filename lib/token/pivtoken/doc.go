// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pivtoken implements [token.Session] on a PIV smart card
// (YubiKey 5.7+ for X25519) over PC/SC, using piv-go.
//
// It lives apart from package token because piv-go needs cgo and the
// PC/SC headers; only cmd/pivd imports it. The private keys never leave
// the card: [Session.Agree] sends the peer point to the card and returns
// the card's answer.
//
// The PIN, when configured, is handed to piv-go as a string on every
// agreement. piv-go's KeyAuth takes the PIN only as a string, so a copy
// lives on the ordinary heap until the garbage collector reclaims it.
// The locked [secret.Buffer] holds the long-lived copy.
package pivtoken
