// Package layout parses and formats station layout codes and maps
// between well labels and row-major slot indices.
//
// A layout code is ZONE[-i[-j]][:slot]. The zone prefix must start with
// a letter. Slot -1 designates the tray itself; slot ≥ 0 designates a
// well on the tray's grid.
package layout

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TraySlot marks a code that addresses the tray rather than a well.
const TraySlot = -1

// DefaultAirlockPrefixes are the zone prefixes whose trays are in
// transit (airlock/intermediate shelving) and must never be picked up
// by discharge orchestration.
var DefaultAirlockPrefixes = []string{"MSB", "MS", "AS", "TS"}

// Code is a parsed layout code.
type Code struct {
	Position string // e.g. "W-1-3"
	Slot     int    // TraySlot (-1) or a 0-based well index
}

// Parse splits a layout code into its tray position and slot. A code
// without a ":slot" suffix addresses the tray.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	pos, slotPart, hasSlot := strings.Cut(s, ":")
	if pos == "" {
		return Code{}, fmt.Errorf("empty layout code")
	}
	if r := rune(pos[0]); !unicode.IsLetter(r) {
		return Code{}, fmt.Errorf("layout code %q: zone must start with a letter", s)
	}
	slot := TraySlot
	if hasSlot {
		n, err := strconv.Atoi(strings.TrimSpace(slotPart))
		if err != nil {
			return Code{}, fmt.Errorf("layout code %q: bad slot %q", s, slotPart)
		}
		if n < TraySlot {
			return Code{}, fmt.Errorf("layout code %q: slot %d out of range", s, n)
		}
		slot = n
	}
	return Code{Position: pos, Slot: slot}, nil
}

// String formats the code back to wire form. Tray codes carry no slot
// suffix.
func (c Code) String() string {
	if c.Slot == TraySlot {
		return c.Position
	}
	return fmt.Sprintf("%s:%d", c.Position, c.Slot)
}

// Zone returns the leading alphabetic prefix of the position, e.g.
// "MSB" for "MSB-1".
func (c Code) Zone() string {
	return Zone(c.Position)
}

// Zone extracts the leading alphabetic prefix of a position string.
func Zone(position string) string {
	for i, r := range position {
		if !unicode.IsLetter(r) {
			return position[:i]
		}
	}
	return position
}

// IsAirlock reports whether the position sits in one of the given
// transit zones. Matching is by zone prefix so that callers can widen a
// family of zones with a single entry.
func IsAirlock(position string, prefixes []string) bool {
	zone := Zone(position)
	if zone == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(zone, p) {
			return true
		}
	}
	return false
}

// SlotToWell converts a 0-based row-major slot index to its well label
// (row letter + 1-based column), e.g. slot 0 → "A1" on any grid.
func SlotToWell(slot, cols, rows int) (string, error) {
	if cols <= 0 || rows <= 0 {
		return "", fmt.Errorf("invalid grid %dx%d", cols, rows)
	}
	if slot < 0 || slot >= cols*rows {
		return "", fmt.Errorf("slot %d out of range [0, %d)", slot, cols*rows)
	}
	r := slot / cols
	c := slot % cols
	return fmt.Sprintf("%c%d", 'A'+r, c+1), nil
}

// WellToSlot converts a well label back to its row-major slot index.
func WellToSlot(well string, cols, rows int) (int, error) {
	if cols <= 0 || rows <= 0 {
		return 0, fmt.Errorf("invalid grid %dx%d", cols, rows)
	}
	well = strings.ToUpper(strings.TrimSpace(well))
	if len(well) < 2 {
		return 0, fmt.Errorf("malformed well %q", well)
	}
	r := int(well[0] - 'A')
	col, err := strconv.Atoi(well[1:])
	if err != nil {
		return 0, fmt.Errorf("malformed well %q", well)
	}
	if r < 0 || r >= rows {
		return 0, fmt.Errorf("well %q: row letter outside %dx%d grid", well, cols, rows)
	}
	if col < 1 || col > cols {
		return 0, fmt.Errorf("well %q: column outside %dx%d grid", well, cols, rows)
	}
	return r*cols + (col - 1), nil
}
