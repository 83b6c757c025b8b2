package regs

import (
	"sync/atomic"
	"unsafe"
)

type mmio struct {
	base unsafe.Pointer
}

// MMIO returns a Bus for the register block located at physical
// address base. It is only meaningful on targets where the
// peripheral is mapped into the address space of the program.
func MMIO(base uintptr) Bus {
	return mmio{base: unsafe.Add(unsafe.Pointer(nil), base)}
}

func (b mmio) word(off uint32) *uint32 {
	return (*uint32)(unsafe.Add(b.base, off))
}

func (b mmio) Load(off uint32) uint32 {
	return atomic.LoadUint32(b.word(off))
}

func (b mmio) Store(off uint32, v uint32) {
	atomic.StoreUint32(b.word(off), v)
}
