// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pivtoken

import (
	"crypto"
	"crypto/ecdh"
	"errors"
	"fmt"
	"strings"

	"github.com/go-piv/piv-go/v2/piv"

	"github.com/bureau-foundation/pivd/lib/secret"
	"github.com/bureau-foundation/pivd/lib/token"
)

// Config selects and unlocks a PIV card.
type Config struct {
	// Card is a case-insensitive substring of the PC/SC reader name.
	// Empty selects the first reader.
	Card string

	// PIN unlocks slots whose PIN policy requires it. Borrowed: the
	// session does not close it. Nil means slots must not require a PIN.
	PIN *secret.Buffer
}

// card is the part of *piv.YubiKey a Session uses.
type card interface {
	KeyInfo(slot piv.Slot) (piv.KeyInfo, error)
	PrivateKey(slot piv.Slot, public crypto.PublicKey, auth piv.KeyAuth) (crypto.PrivateKey, error)
	Close() error
}

// x25519Agreer is the agreement capability piv-go exposes on X25519
// slot keys.
type x25519Agreer interface {
	ECDH(peer *ecdh.PublicKey) ([]byte, error)
}

// slotKey is what a slot's metadata resolves to. It holds no secret.
type slotKey struct {
	pivSlot   piv.Slot
	public    *ecdh.PublicKey
	pinPolicy piv.PINPolicy
}

// Session is a token.Session backed by a PIV card. piv.Open begins a
// PC/SC transaction that is held until Close, so every agreement reuses
// the same transaction.
type Session struct {
	name string
	card card
	pin  *secret.Buffer

	// keys caches slot metadata so each agreement costs one APDU
	// exchange instead of a metadata read plus the exchange.
	keys map[token.Slot]slotKey
}

var _ token.Session = (*Session)(nil)

// Open opens the card selected by config.
func Open(config Config) (*Session, error) {
	cards, err := piv.Cards()
	if err != nil {
		return nil, fmt.Errorf("listing smart cards: %w", err)
	}
	name, err := selectCard(cards, config.Card)
	if err != nil {
		return nil, err
	}

	yubikey, err := piv.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}
	return newSession(name, yubikey, config.PIN), nil
}

func newSession(name string, card card, pin *secret.Buffer) *Session {
	return &Session{
		name: name,
		card: card,
		pin:  pin,
		keys: make(map[token.Slot]slotKey),
	}
}

// Card returns the reader name of the open card.
func (s *Session) Card() string {
	return s.name
}

// Agree implements token.Session.
func (s *Session) Agree(slot token.Slot, peer [token.PointSize]byte) ([]byte, error) {
	key, err := s.slotKey(slot)
	if err != nil {
		return nil, err
	}

	peerKey, err := ecdh.X25519().NewPublicKey(peer[:])
	if err != nil {
		return nil, fmt.Errorf("peer key: %w", err)
	}

	// KeyAuth is built per call so the PIN string is not retained by
	// the session.
	auth := piv.KeyAuth{PINPolicy: key.pinPolicy}
	if s.pin != nil {
		auth.PIN = s.pin.String()
	}
	private, err := s.card.PrivateKey(key.pivSlot, key.public, auth)
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", slot, err)
	}
	agreer, ok := private.(x25519Agreer)
	if !ok {
		return nil, fmt.Errorf("slot %s: key does not support X25519 agreement", slot)
	}

	shared, err := agreer.ECDH(peerKey)
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", slot, err)
	}
	return shared, nil
}

func (s *Session) slotKey(slot token.Slot) (slotKey, error) {
	if key, ok := s.keys[slot]; ok {
		return key, nil
	}

	pivSlot, ok := piv.RetiredKeyManagementSlot(slot.KeyReference())
	if !ok {
		return slotKey{}, fmt.Errorf("slot %s has no PIV key reference", slot)
	}

	info, err := s.card.KeyInfo(pivSlot)
	if errors.Is(err, piv.ErrNotFound) {
		return slotKey{}, fmt.Errorf("slot %s: %w", slot, token.ErrSlotEmpty)
	}
	if err != nil {
		return slotKey{}, fmt.Errorf("reading slot %s metadata: %w", slot, err)
	}
	public, ok := info.PublicKey.(*ecdh.PublicKey)
	if !ok || public.Curve() != ecdh.X25519() {
		return slotKey{}, fmt.Errorf("slot %s: %w", slot, token.ErrSlotEmpty)
	}

	key := slotKey{pivSlot: pivSlot, public: public, pinPolicy: info.PINPolicy}
	s.keys[slot] = key
	return key, nil
}

// Close ends the card transaction.
func (s *Session) Close() error {
	clear(s.keys)
	return s.card.Close()
}

// selectCard picks the reader whose name contains want, or the first
// reader when want is empty.
func selectCard(cards []string, want string) (string, error) {
	if len(cards) == 0 {
		return "", fmt.Errorf("no smart card readers found")
	}
	if want == "" {
		return cards[0], nil
	}
	needle := strings.ToLower(want)
	for _, card := range cards {
		if strings.Contains(strings.ToLower(card), needle) {
			return card, nil
		}
	}
	return "", fmt.Errorf("no smart card matching %q (available: %s)", want, strings.Join(cards, ", "))
}
