package regs

import (
	"testing"
	"unsafe"
)

// block stands in for a peripheral; package level, so it does not move.
var block [4]uint32

func TestMMIO(t *testing.T) {
	b := MMIO(uintptr(unsafe.Pointer(&block[0])))
	b.Store(4, 0xCAFE)
	At(b, 12).Set(Field{Shift: 8, Width: 4}, 0xA)
	if block[1] != 0xCAFE || block[3] != 0xA00 {
		t.Errorf("block %#x", block)
	}
	block[2] = 7
	if v := b.Load(8); v != 7 {
		t.Errorf("load %d", v)
	}
}
