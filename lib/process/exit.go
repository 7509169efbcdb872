// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// exit is replaced in tests.
var exit = os.Exit

// Fatal writes "error: err" to stderr and exits with status 1. Use it in
// main() for errors returned before the logger is configured.
func Fatal(err error) {
	report(os.Stderr, err)
	exit(1)
}

func report(output io.Writer, err error) {
	fmt.Fprintf(output, "error: %v\n", err)
}
