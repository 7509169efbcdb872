// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the pivd request language and its
// responses.
//
// A request is UTF-8 text: a command code, one space, and a
// command-specific body. The only command is
//
//	calculate_agreement <R1|R2> <66 hex chars>
//
// where the hex decodes to a 33-byte peer public key whose first byte is
// a type tag. The tag is dropped and the remaining 32 bytes are the
// X25519 point handed to the token.
//
// Responses are "success <hex agreement>" or "error <message>". Error
// messages are a single line and wrap one of the Err* sentinels, so
// callers can classify failures with errors.Is.
//
// [Parse] turns text into a [Command]; [Dispatcher] parses, executes
// against a [token.Session], and formats the response.
package protocol
