// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	previous := exit
	exit = func(status int) { code = status }
	t.Cleanup(func() { exit = previous })
	return &code
}

func TestReport(t *testing.T) {
	var output bytes.Buffer
	report(&output, errors.New("opening token: no card"))
	if got := output.String(); got != "error: opening token: no card\n" {
		t.Fatalf("report wrote %q", got)
	}
}

func TestFatal(t *testing.T) {
	code := captureExit(t)

	Fatal(errors.New("listening on /tmp/signal-piv.sock: address in use"))

	if *code != 1 {
		t.Fatalf("exit status = %d, want 1", *code)
	}
}
