package usb2snes

import (
	"errors"
	"testing"
)

func TestWRAMOffset(t *testing.T) {
	cases := []struct {
		name string
		addr uint32
		want uint32
		ok   bool
	}{
		{"bank 7E start", 0x7E0000, WRAMBase, true},
		{"bank 7E offset", 0x7E0260, WRAMBase + 0x260, true},
		{"bank 7F high", 0x7FFFFF, WRAMBase + 0x1FFFF, true},
		{"low RAM mirror bank 00", 0x001000, WRAMBase + 0x1000, true},
		{"low RAM mirror bank 3F", 0x3F1FFF, WRAMBase + 0x1FFF, true},
		{"fast mirror bank 80", 0x801234, WRAMBase + 0x1234, true},
		{"PPU registers not WRAM", 0x002100, 0, false},
		{"ROM bank 40", 0x400000, 0, false},
		{"SRAM region", 0x700000, 0, false},
	}
	for _, c := range cases {
		got, err := WRAMOffset(c.addr)
		if c.ok {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", c.name, err)
			}
			if got != c.want {
				t.Fatalf("%s: got 0x%X, want 0x%X", c.name, got, c.want)
			}
			continue
		}
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: expected ErrProtocol, got %v", c.name, err)
		}
	}
}
