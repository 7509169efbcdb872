// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bureau-foundation/pivd/lib/token"
)

// CodeCalculateAgreement is the command code of CalculateAgreement.
const CodeCalculateAgreement = "calculate_agreement"

// PeerKeySize is the decoded length of the peer key on the wire: one tag
// byte followed by the X25519 point.
const PeerKeySize = 1 + token.PointSize

// Command is a parsed request. The set of commands is closed: the only
// implementation is CalculateAgreement.
type Command interface {
	// Code returns the wire command code.
	Code() string

	command()
}

// CalculateAgreement asks the token for X25519(slot key, Peer).
type CalculateAgreement struct {
	Slot token.Slot

	// Tag is the discarded format byte that preceded the point on the
	// wire.
	Tag byte

	Peer [token.PointSize]byte
}

func (CalculateAgreement) Code() string { return CodeCalculateAgreement }
func (CalculateAgreement) command()     {}

// String renders the command in wire form.
func (c CalculateAgreement) String() string {
	return fmt.Sprintf("%s %s %02x%x", CodeCalculateAgreement, c.Slot, c.Tag, c.Peer[:])
}

// Parse parses one request.
func Parse(text string) (Command, error) {
	code, body, found := strings.Cut(text, " ")
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMissingCommandBody, echo(text))
	}

	switch code {
	case CodeCalculateAgreement:
		return parseCalculateAgreement(body)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, echo(code))
	}
}

// parseCalculateAgreement parses "<slot> <hexkey>". A single space after
// the key is tolerated; anything after that space is trailing data.
func parseCalculateAgreement(body string) (Command, error) {
	slotToken, rest, found := strings.Cut(body, " ")
	if !found {
		return nil, fmt.Errorf("%w: expected \"<slot> <peer_key>\", got %s", ErrMissingSlotID, echo(body))
	}
	keyToken, trailing, _ := strings.Cut(rest, " ")
	if keyToken == "" {
		return nil, ErrMissingPeerKey
	}
	if trailing != "" {
		return nil, fmt.Errorf("%w: %s", ErrTrailingData, echo(trailing))
	}

	slot, err := token.ParseSlot(slotToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSlotID, echo(slotToken))
	}

	key, err := hex.DecodeString(keyToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerKeyEncoding, err)
	}
	if len(key) != PeerKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrPeerKeyLength, PeerKeySize, len(key))
	}

	command := CalculateAgreement{Slot: slot, Tag: key[0]}
	copy(command.Peer[:], key[1:])
	return command, nil
}
