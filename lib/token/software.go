// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/pivd/lib/sealed"
	"github.com/bureau-foundation/pivd/lib/secret"
)

// SoftwareConfig locates the key file of a software token.
type SoftwareConfig struct {
	// KeyFile is a YAML document of the form
	//
	//	slots:
	//	  R1: <64 hex chars, X25519 private scalar>
	//	  R2: <...>
	//
	// Slots may be omitted; agreeing with an omitted slot fails with
	// ErrSlotEmpty.
	KeyFile string

	// AgeIdentity, when set, is an age identity file used to decrypt
	// KeyFile.
	AgeIdentity string
}

// keyFile is the on-disk layout of SoftwareConfig.KeyFile.
type keyFile struct {
	Slots map[string]string `yaml:"slots"`
}

// SoftwareSession is a Session whose keys live in locked process memory
// instead of on a device. It exists for development and tests.
type SoftwareSession struct {
	keys map[Slot]*secret.Buffer
}

// OpenSoftware loads the key file described by config.
func OpenSoftware(config SoftwareConfig) (*SoftwareSession, error) {
	contents, err := readKeyFile(config)
	if err != nil {
		return nil, err
	}
	defer contents.Close()

	var parsed keyFile
	if err := yaml.Unmarshal(contents.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", config.KeyFile, err)
	}

	session := &SoftwareSession{keys: make(map[Slot]*secret.Buffer)}
	for name, encoded := range parsed.Slots {
		slot, err := ParseSlot(name)
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("key file %s: %w", config.KeyFile, err)
		}
		scalar, err := hex.DecodeString(encoded)
		if err != nil || len(scalar) != curve25519.ScalarSize {
			secret.Zero(scalar)
			session.Close()
			return nil, fmt.Errorf("key file %s: slot %s: want %d hex-encoded bytes", config.KeyFile, name, curve25519.ScalarSize)
		}
		buffer, err := secret.NewFromBytes(scalar)
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("protecting key for slot %s: %w", name, err)
		}
		session.keys[slot] = buffer
	}
	if len(session.keys) == 0 {
		return nil, fmt.Errorf("key file %s defines no slots", config.KeyFile)
	}
	return session, nil
}

// NewSoftwareSession builds a session from raw private scalars. The
// scalars are copied into protected memory and zeroed.
func NewSoftwareSession(scalars map[Slot][]byte) (*SoftwareSession, error) {
	session := &SoftwareSession{keys: make(map[Slot]*secret.Buffer)}
	for slot, scalar := range scalars {
		if len(scalar) != curve25519.ScalarSize {
			session.Close()
			return nil, fmt.Errorf("slot %s: private key must be %d bytes, got %d", slot, curve25519.ScalarSize, len(scalar))
		}
		buffer, err := secret.NewFromBytes(scalar)
		if err != nil {
			session.Close()
			return nil, err
		}
		session.keys[slot] = buffer
	}
	return session, nil
}

func readKeyFile(config SoftwareConfig) (*secret.Buffer, error) {
	if config.AgeIdentity != "" {
		return sealed.DecryptFile(config.KeyFile, config.AgeIdentity)
	}
	data, err := os.ReadFile(config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return secret.NewFromBytes(data)
}

// Agree implements Session.
func (s *SoftwareSession) Agree(slot Slot, peer [PointSize]byte) ([]byte, error) {
	key, ok := s.keys[slot]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", slot, ErrSlotEmpty)
	}
	shared, err := curve25519.X25519(key.Bytes(), peer[:])
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", slot, err)
	}
	return shared, nil
}

// PublicKey returns the X25519 public point for slot.
func (s *SoftwareSession) PublicKey(slot Slot) ([]byte, error) {
	key, ok := s.keys[slot]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", slot, ErrSlotEmpty)
	}
	return curve25519.X25519(key.Bytes(), curve25519.Basepoint)
}

// Close zeros all slot keys.
func (s *SoftwareSession) Close() error {
	var firstError error
	for slot, key := range s.keys {
		if err := key.Close(); err != nil && firstError == nil {
			firstError = err
		}
		delete(s.keys, slot)
	}
	return firstError
}
