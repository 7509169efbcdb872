// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads pivd's YAML configuration.
//
// Configuration comes from exactly one file, named either by the
// PIVD_CONFIG environment variable ([Load]) or a --config flag
// ([LoadFile]). There is no search path. Command-line flags may
// override individual fields after loading; no other environment
// variable does.
//
// Path fields (socket_path, token.pin_file, token.key_file,
// token.age_identity) support ${VAR} and ${VAR:-default} expansion so a
// single file can point into $XDG_RUNTIME_DIR or $HOME.
//
// Without a config file, [Default] reproduces the historical daemon:
// socket at /tmp/signal-piv.sock, first PIV card, no PIN.
package config
