// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pivd lets a messaging client compute X25519 shared secrets with
// private keys that never leave a PIV hardware token.
//
// At startup pivd opens exactly one token session (one PC/SC transaction
// for the PIV backend) and keeps it for the life of the process. It then
// listens on a Unix socket and serves one request per connection,
// strictly one connection at a time:
//
//	request:  u32le length | "calculate_agreement <R1|R2> <66 hex chars>"
//	response: u32le length | "success <64 hex chars>" or "error <message>"
//
// Configuration comes from --config, PIVD_CONFIG, or built-in defaults
// (socket /tmp/signal-piv.sock, first PIV card). Selected fields can be
// overridden with flags; see --help.
//
// pivd exits non-zero if the token cannot be opened, the socket cannot
// be created, or accepting a connection fails. SIGINT and SIGTERM stop
// it cleanly.
package main
