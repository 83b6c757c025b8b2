// Package regs provides word access to memory mapped peripheral
// registers, and named bit fields within those registers.
package regs

// Bus gives 32-bit access to the register block of one peripheral.
// Offsets are byte offsets relative to the start of the block.
type Bus interface {
	Load(off uint32) uint32
	Store(off uint32, v uint32)
}

// Field describes Width bits starting at bit Shift of a register.
type Field struct {
	Shift uint8
	Width uint8
}

// Bit returns a one bit wide field at bit n.
func Bit(n uint8) Field {
	return Field{Shift: n, Width: 1}
}

// Mask returns the field's bits in register position.
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return (uint32(1)<<f.Width - 1) << f.Shift
}

// Max is the largest value the field can hold.
func (f Field) Max() uint32 {
	return f.Mask() >> f.Shift
}

// Get extracts the field from word w.
func (f Field) Get(w uint32) uint32 {
	return (w & f.Mask()) >> f.Shift
}

// Put returns w with the field replaced by v. Bits of v that
// do not fit into the field are dropped.
func (f Field) Put(w, v uint32) uint32 {
	return w&^f.Mask() | (v<<f.Shift)&f.Mask()
}

// Val returns v shifted into field position.
func (f Field) Val(v uint32) uint32 {
	return f.Put(0, v)
}

// Reg is a single register of a Bus.
type Reg struct {
	Bus Bus
	Off uint32
}

// At returns the register at offset off of b.
func At(b Bus, off uint32) Reg {
	return Reg{Bus: b, Off: off}
}

func (r Reg) Load() uint32 {
	return r.Bus.Load(r.Off)
}

func (r Reg) Store(v uint32) {
	r.Bus.Store(r.Off, v)
}

// Get reads the register and extracts f.
func (r Reg) Get(f Field) uint32 {
	return f.Get(r.Load())
}

// Test reports whether any bit of f is set.
func (r Reg) Test(f Field) bool {
	return r.Load()&f.Mask() != 0
}

// Set replaces field f using a read-modify-write cycle.
// It must not be used on registers containing write-1-to-clear flags.
func (r Reg) Set(f Field, v uint32) {
	r.Store(f.Put(r.Load(), v))
}

// SetFlag sets or clears a one bit field.
func (r Reg) SetFlag(f Field, on bool) {
	if on {
		r.SetBits(f.Mask())
	} else {
		r.ClearBits(f.Mask())
	}
}

func (r Reg) SetBits(mask uint32) {
	r.Store(r.Load() | mask)
}

func (r Reg) ClearBits(mask uint32) {
	r.Store(r.Load() &^ mask)
}
