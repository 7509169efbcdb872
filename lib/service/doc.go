// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service runs pivd's Unix socket: socket lifecycle, the
// sequential accept loop, and the one-request-per-connection handler.
//
// [SocketServer] removes whatever occupies its socket path, binds, and
// then accepts and fully handles one connection at a time. Each
// connection carries one framed request (see lib/frame) and gets at
// most one framed response before it is closed. A client must open a
// new connection per request.
//
// Failures before a request has been decoded (disallowed peer, short or
// oversized frame, invalid UTF-8) drop the connection silently. Every
// decoded request gets a response from the [Handler]. An Accept failure
// ends Serve with an error.
//
// [PeerCredentialsOf] reads SO_PEERCRED for logging and for the optional
// UID allowlist.
package service
