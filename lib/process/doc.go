// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the exit paths of pivd binaries: reporting an
// error to stderr when the structured logger may not exist yet, and
// logging an unrecoverable error through it when it does. Both exit
// with status 1.
package process
