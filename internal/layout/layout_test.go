package layout

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		pos     string
		slot    int
		wantErr bool
	}{
		{"W-1-3", "W-1-3", TraySlot, false},
		{"W-1-3:-1", "W-1-3", TraySlot, false},
		{"T-1-1:0", "T-1-1", 0, false},
		{"MSB-1:17", "MSB-1", 17, false},
		{"N-2", "N-2", TraySlot, false},
		{"", "", 0, true},
		{"1-W", "", 0, true},     // zone must start with a letter
		{"W-1:abc", "", 0, true}, // bad slot
		{"W-1:-2", "", 0, true},  // below tray marker
	}
	for _, tt := range tests {
		c, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if c.Position != tt.pos || c.Slot != tt.slot {
			t.Errorf("Parse(%q) = %+v, want pos=%q slot=%d", tt.in, c, tt.pos, tt.slot)
		}
	}
}

func TestCodeString(t *testing.T) {
	if got := (Code{Position: "T-1-1", Slot: 5}).String(); got != "T-1-1:5" {
		t.Errorf("String() = %q", got)
	}
	if got := (Code{Position: "W-1-3", Slot: TraySlot}).String(); got != "W-1-3" {
		t.Errorf("tray String() = %q", got)
	}
}

func TestZone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"MSB-1", "MSB"},
		{"W-1-3", "W"},
		{"TB-2-1", "TB"},
		{"N", "N"},
	}
	for _, tt := range tests {
		if got := Zone(tt.in); got != tt.want {
			t.Errorf("Zone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsAirlock(t *testing.T) {
	p := DefaultAirlockPrefixes
	for _, pos := range []string{"MSB-1", "MS-2", "AS-1", "TS-3"} {
		if !IsAirlock(pos, p) {
			t.Errorf("IsAirlock(%q) = false, want true", pos)
		}
	}
	for _, pos := range []string{"W-1-3", "T-1-1", "TB-2-1", "N-2"} {
		if IsAirlock(pos, p) {
			t.Errorf("IsAirlock(%q) = true, want false", pos)
		}
	}
}

func TestSlotWellRoundTrip(t *testing.T) {
	const cols, rows = 6, 4
	for slot := 0; slot < cols*rows; slot++ {
		well, err := SlotToWell(slot, cols, rows)
		if err != nil {
			t.Fatalf("SlotToWell(%d): %v", slot, err)
		}
		back, err := WellToSlot(well, cols, rows)
		if err != nil {
			t.Fatalf("WellToSlot(%q): %v", well, err)
		}
		if back != slot {
			t.Errorf("round trip slot %d → %q → %d", slot, well, back)
		}
	}
}

func TestSlotWellBounds(t *testing.T) {
	if _, err := SlotToWell(24, 6, 4); err == nil {
		t.Error("slot 24 on 6x4 should be rejected")
	}
	if _, err := SlotToWell(-1, 6, 4); err == nil {
		t.Error("negative slot should be rejected")
	}
	if _, err := WellToSlot("E1", 6, 4); err == nil {
		t.Error("row E on 4-row grid should be rejected")
	}
	if _, err := WellToSlot("A7", 6, 4); err == nil {
		t.Error("column 7 on 6-col grid should be rejected")
	}
	if got, err := SlotToWell(0, 6, 4); err != nil || got != "A1" {
		t.Errorf("slot 0 = %q (%v), want A1", got, err)
	}
	if got, err := WellToSlot("B3", 6, 4); err != nil || got != 8 {
		t.Errorf("B3 = %d (%v), want 8", got, err)
	}
}
