// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements the pivd wire framing: a 4-byte little-endian
// unsigned length followed by exactly that many payload bytes. Requests
// and responses use the same framing.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length of the length prefix.
const HeaderSize = 4

// MaxPayload is the receive buffer capacity. A frame declaring more is a
// protocol violation.
const MaxPayload = 8192

var (
	// ErrShortHeader means the stream ended inside the length prefix.
	ErrShortHeader = errors.New("frame: short length prefix")

	// ErrShortPayload means the stream ended before the declared number
	// of payload bytes arrived.
	ErrShortPayload = errors.New("frame: short payload")

	// ErrTooLarge means the declared or supplied payload exceeds
	// MaxPayload.
	ErrTooLarge = errors.New("frame: payload too large")
)

// Read reads one frame into buffer and returns the payload, which aliases
// buffer. buffer must hold at least MaxPayload bytes. A clean EOF before
// any byte of the prefix is returned as io.EOF.
func Read(r io.Reader, buffer []byte) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxPayload || int(length) > len(buffer) {
		return nil, fmt.Errorf("%w: %d bytes declared", ErrTooLarge, length)
	}

	payload := buffer[:length]
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %d bytes declared", ErrShortPayload, length)
		}
		return nil, err
	}
	return payload, nil
}

// Write writes payload as one frame with a single Write call, so the
// prefix and payload are never interleaved with other output.
func Write(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(payload))
	}

	message := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(message[:HeaderSize], uint32(len(payload)))
	copy(message[HeaderSize:], payload)
	_, err := w.Write(message)
	return err
}
