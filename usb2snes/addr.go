package usb2snes

import "fmt"

// usb2snes flat address space offsets. The bridge exposes console memory as
// one linear space; these bases map its windows.
const (
	SRAMBase uint32 = 0xE00000
	WRAMBase uint32 = 0xF50000
	VRAMBase uint32 = 0xF70000
)

// WRAMOffset maps a SNES bus address onto the usb2snes Work-RAM window.
// Banks $7E/$7F map directly; banks $00-$3F (and their fast-ROM mirrors)
// mirror the low 8 KiB of Work-RAM at $0000-$1FFF. Anything else is not a
// Work-RAM address.
func WRAMOffset(busAddr uint32) (uint32, error) {
	bank := busAddr >> 16
	switch {
	case bank == 0x7E || bank == 0x7F:
		return (busAddr & 0x01FFFF) | WRAMBase, nil
	case bank&0x7F < 0x40:
		if busAddr&0xFFFF < 0x2000 {
			return (busAddr & 0x1FFF) | WRAMBase, nil
		}
	}
	return 0, fmt.Errorf("%w: $%06X is not a Work-RAM address", ErrProtocol, busAddr)
}
