// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed decrypts age-encrypted files into protected memory. It
// wraps filippo.io/age for the one thing pivd needs at rest: keeping the
// software token's slot keys encrypted on disk.
//
// Both binary and ASCII-armored ciphertext are accepted. Identity files
// use the standard age format (one AGE-SECRET-KEY-1... per line, with
// "#" comments). Plaintext and identities are held in [secret.Buffer]
// values.
//
// Key exports:
//
//   - [DecryptFile] -- decrypt a file with the identities in another file
//   - [GenerateKeypair] and [Encrypt] -- produce key files for tests and
//     for operators preparing a software token
package sealed
