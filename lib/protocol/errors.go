// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"strconv"
)

var (
	ErrMissingCommandBody = errors.New("missing command body")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrMissingSlotID      = errors.New("missing slot id")
	ErrMissingPeerKey     = errors.New("missing peer key")
	ErrTrailingData       = errors.New("unexpected trailing data")
	ErrInvalidSlotID      = errors.New("invalid slot id")
	ErrPeerKeyEncoding    = errors.New("invalid peer key encoding")
	ErrPeerKeyLength      = errors.New("invalid peer key length")
	ErrHardware           = errors.New("hardware failed to calculate agreement")
)

// maxEcho bounds how much client input is repeated back in an error.
const maxEcho = 64

// echo quotes client-supplied text for inclusion in an error message.
func echo(value string) string {
	if len(value) > maxEcho {
		return strconv.Quote(value[:maxEcho]) + "..."
	}
	return strconv.Quote(value)
}
