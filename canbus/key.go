package canbus

// Acceptance filters compare right-aligned identifier keys.
//
// The 32-bit key holds the RTR flag in bit 31 and the IDE flag in
// bit 30. A standard identifier occupies bits 26..16, an extended
// identifier bits 28..0:
//
//	std: RTR<<31 | IDE<<30 | id<<16
//	ext: RTR<<31 | IDE<<30 | id
//
// The 16-bit key holds RTR in bit 15, IDE in bit 14, and the eleven
// bits of a standard identifier (or the upper eleven bits of an
// extended identifier) in bits 10..0.
//
// These keys are the layout of the controller model in package sim.
// They differ from the filter registers of the silicon, which hold
// STID in bits 31..21, EXID in bits 20..3, IDE in bit 2 and RTR in
// bit 1 of a 32-bit filter. Keys built here must not be programmed
// into a real controller.

const (
	key32RTR = 1 << 31
	key32IDE = 1 << 30
	key16RTR = 1 << 15
	key16IDE = 1 << 14
)

// Key32 returns the 32-bit filter key of an identifier.
func Key32(id uint32, extended, rtr bool) uint32 {
	var k uint32
	if extended {
		k = key32IDE | id&MaxExtID
	} else {
		k = (id & MaxStdID) << 16
	}
	if rtr {
		k |= key32RTR
	}
	return k
}

// Key16 returns the 16-bit filter key of an identifier.
func Key16(id uint32, extended, rtr bool) uint16 {
	var k uint16
	if extended {
		k = key16IDE | uint16(id>>18)&MaxStdID
	} else {
		k = uint16(id & MaxStdID)
	}
	if rtr {
		k |= key16RTR
	}
	return k
}

func (f *Frame) Key32() uint32 { return Key32(f.ID, f.Extended, f.RTR) }
func (f *Frame) Key16() uint16 { return Key16(f.ID, f.Extended, f.RTR) }
