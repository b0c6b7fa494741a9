// Package tilemap decodes the smpspeed measurement ROM's text tilemap into
// glyph lines. The ROM mirrors its BG1 tilemap text into Work-RAM, so a
// snapshot of that region is a fixed 15x32 grid of tile-index bytes. The
// charset places printable text at the ASCII code points and uses 0x00 tiles
// as blank padding; anything else is an unknown glyph.
package tilemap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

const (
	// Rows and Cols describe the visible text grid of the measurement ROM.
	Rows = 15
	Cols = 32

	// SnapshotSize is the exact number of bytes a raw snapshot must hold.
	SnapshotSize = Rows * Cols

	// SnapshotOffset is the usb2snes flat offset of the mirrored tilemap
	// (Work-RAM space, $0260 into bank $7E).
	SnapshotOffset = 0xF50260
)

// Blank is the tile index the ROM uses for empty cells.
const Blank = 0x00

// Unknown is the sentinel rune for tile indexes outside the charset. An
// unmapped tile must never be mistaken for a blank or a zero digit.
const Unknown = '�'

// ErrGeometry reports a snapshot whose size does not match the expected
// grid. This is a structural failure: the read offset or size constants are
// wrong, and re-reading cannot fix it.
var ErrGeometry = errors.New("tilemap: snapshot size does not match screen geometry")

// glyphs maps a tile-index byte to its displayed rune, built once at startup
// and read-only thereafter.
var glyphs = buildGlyphTable()

func buildGlyphTable() [256]rune {
	var t [256]rune
	for i := range t {
		t[i] = Unknown
	}
	t[Blank] = 0
	for b := byte(0x20); b < 0x7F; b++ {
		t[b] = rune(b)
	}
	return t
}

// Screen is a decoded snapshot: one string per tilemap row plus the raw
// bytes it was decoded from. Two Screens produced from identical snapshots
// are identical; Equal is the stability predicate the sampler relies on.
type Screen struct {
	lines [Rows]string
	raw   []byte
	hash  uint64
}

// Decode converts a raw tilemap snapshot into a Screen. It is pure: the same
// bytes always produce the same Screen. Returns ErrGeometry when the
// snapshot is not exactly Rows*Cols bytes.
func Decode(snapshot []byte) (*Screen, error) {
	if len(snapshot) != SnapshotSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrGeometry, len(snapshot), SnapshotSize)
	}
	s := &Screen{
		raw:  bytes.Clone(snapshot),
		hash: xxh3.Hash(snapshot),
	}
	runes := make([]rune, Cols)
	for row := 0; row < Rows; row++ {
		line := s.raw[row*Cols : (row+1)*Cols]
		for col, b := range line {
			runes[col] = glyphs[b]
		}
		s.lines[row] = string(runes)
	}
	return s, nil
}

// Line returns the decoded glyphs of one row. Blank tiles decode to NUL
// runes so callers can distinguish padding from drawn spaces.
func (s *Screen) Line(row int) string {
	if s == nil || row < 0 || row >= Rows {
		return ""
	}
	return s.lines[row]
}

// Hash returns the xxh3 content hash of the raw snapshot. Used as the fast
// path for Equal and as a cheap identity in logs.
func (s *Screen) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

// Raw returns the snapshot bytes the screen was decoded from.
func (s *Screen) Raw() []byte {
	if s == nil {
		return nil
	}
	return s.raw
}

// Equal reports whether two screens were decoded from identical snapshots.
// The hash comparison rejects mismatches cheaply; the byte comparison is
// authoritative.
func (s *Screen) Equal(o *Screen) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.hash != o.hash {
		return false
	}
	return bytes.Equal(s.raw, o.raw)
}

// HasLabel reports whether the tiles of a row, starting at col, spell out
// the given ASCII label. Comparison happens on the raw tile bytes so torn
// frames with out-of-charset tiles never false-match.
func (s *Screen) HasLabel(row, col int, label string) bool {
	if s == nil || row < 0 || row >= Rows || col < 0 || col+len(label) > Cols {
		return false
	}
	line := s.raw[row*Cols : (row+1)*Cols]
	return string(line[col:col+len(label)]) == label
}

// CellText extracts the display text of a row starting at the given column:
// padding (blank tiles and spaces) is trimmed from both ends and the text is
// cut at the first interior blank tile, matching how the ROM terminates its
// counter strings. Out-of-charset tiles decode to the Unknown sentinel, which
// no numeric parser accepts.
func (s *Screen) CellText(row, col int) string {
	if s == nil || row < 0 || row >= Rows || col < 0 || col > Cols {
		return ""
	}
	cell := s.raw[row*Cols+col : (row+1)*Cols]
	cell = bytes.Trim(cell, "\x00 ")
	if i := bytes.IndexByte(cell, Blank); i >= 0 {
		cell = cell[:i]
	}
	runes := make([]rune, len(cell))
	for i, b := range cell {
		runes[i] = glyphs[b]
	}
	return string(runes)
}
