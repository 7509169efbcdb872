// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package token

import "fmt"

// PointSize is the length of an X25519 public point and of the shared
// secret derived from it.
const PointSize = 32

// Slot identifies one of the token key slots that can be used for
// agreement. The zero value is not a valid slot.
type Slot int

const (
	// SlotR1 is PIV retired key-management slot 1 (key reference 0x82).
	SlotR1 Slot = iota + 1
	// SlotR2 is PIV retired key-management slot 2 (key reference 0x83).
	SlotR2
)

// Slots lists every addressable slot.
var Slots = []Slot{SlotR1, SlotR2}

// ParseSlot maps a wire slot name ("R1" or "R2") to a Slot. Names are
// case-sensitive.
func ParseSlot(name string) (Slot, error) {
	switch name {
	case "R1":
		return SlotR1, nil
	case "R2":
		return SlotR2, nil
	default:
		return 0, fmt.Errorf("unknown slot %q (want R1 or R2)", name)
	}
}

// String returns the wire name of the slot.
func (s Slot) String() string {
	switch s {
	case SlotR1:
		return "R1"
	case SlotR2:
		return "R2"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

// KeyReference returns the PIV key reference for the slot, or 0 for an
// invalid slot.
func (s Slot) KeyReference() uint32 {
	switch s {
	case SlotR1:
		return 0x82
	case SlotR2:
		return 0x83
	default:
		return 0
	}
}
