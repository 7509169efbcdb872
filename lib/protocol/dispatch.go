// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/pivd/lib/frame"
	"github.com/bureau-foundation/pivd/lib/token"
)

const (
	successPrefix = "success "
	errorPrefix   = "error "
)

// Dispatcher executes requests against one token session. It borrows the
// session and never closes it. Not safe for concurrent use, because the
// session is not.
type Dispatcher struct {
	session token.Session
	logger  *slog.Logger
}

// NewDispatcher returns a Dispatcher that runs every command on session.
func NewDispatcher(session token.Session, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{session: session, logger: logger}
}

// Handle parses and executes request and returns the response text.
// Every outcome, including parse failures, produces a response.
func (d *Dispatcher) Handle(request string) string {
	agreement, err := d.dispatch(request)
	if err != nil {
		d.logger.Warn("command failed", "error", err)
		return FormatError(err)
	}
	return FormatSuccess(agreement)
}

func (d *Dispatcher) dispatch(request string) ([]byte, error) {
	command, err := Parse(request)
	if err != nil {
		return nil, err
	}

	switch command := command.(type) {
	case CalculateAgreement:
		return d.calculateAgreement(command)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, echo(command.Code()))
	}
}

func (d *Dispatcher) calculateAgreement(command CalculateAgreement) ([]byte, error) {
	d.logger.Debug("calculating agreement",
		"slot", command.Slot.String(),
		"peer", Fingerprint(command.Peer[:]),
	)

	agreement, err := d.session.Agree(command.Slot, command.Peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHardware, err)
	}
	if len(agreement) != token.PointSize {
		return nil, fmt.Errorf("%w: token returned %d bytes", ErrHardware, len(agreement))
	}

	d.logger.Info("agreement calculated", "slot", command.Slot.String())
	return agreement, nil
}

// FormatSuccess renders a success response.
func FormatSuccess(agreement []byte) string {
	return successPrefix + hex.EncodeToString(agreement)
}

// FormatError renders an error response. Line breaks in the message are
// replaced with spaces and the result is cut to fit in one frame.
func FormatError(err error) string {
	message := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, err.Error())

	response := errorPrefix + message
	if len(response) > frame.MaxPayload {
		response = strings.ToValidUTF8(response[:frame.MaxPayload], "")
	}
	return response
}

// ParseResponse splits response text into the agreement on success, or
// an error carrying the daemon's message.
func ParseResponse(response string) ([]byte, error) {
	if encoded, ok := strings.CutPrefix(response, successPrefix); ok {
		agreement, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("malformed success response: %w", err)
		}
		return agreement, nil
	}
	if message, ok := strings.CutPrefix(response, errorPrefix); ok {
		return nil, &ResponseError{Message: message}
	}
	return nil, fmt.Errorf("malformed response: %s", echo(response))
}

// ResponseError is an "error" response received from the daemon.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return "pivd: " + e.Message
}

// Fingerprint is a short BLAKE3 digest of key, used to correlate peer
// keys in logs without logging them.
func Fingerprint(key []byte) string {
	sum := blake3.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
