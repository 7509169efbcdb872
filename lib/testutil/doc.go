// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for pivd packages.
//
// [SocketDir] creates a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes (sun_path); t.TempDir() paths
// can exceed that. [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout pattern so that tests waiting on a server
// goroutine fail instead of hanging.
//
// Helpers call t.Fatalf on failure.
package testutil
