// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material and PINs outside the Go heap.
//
// [Buffer] memory comes from an anonymous mmap, is locked into RAM with
// mlock, and is excluded from core dumps with MADV_DONTDUMP. Close zeros
// and unmaps it; any access after Close panics.
//
// Sources:
//
//   - [New] and [NewFromBytes] for in-process material (the latter
//     zeros the caller's slice)
//   - [ReadFromPath] for PIN files, or stdin when the path is "-"
//   - [ReadFromTerminal] for an interactive, echo-less prompt
//
// Used by lib/token for software slot keys and the PIV PIN, and by
// lib/sealed for decrypted key files.
package secret
