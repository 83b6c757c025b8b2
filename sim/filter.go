package sim

import (
	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/regs"
)

// match runs the acceptance filters in bank order. Filter match
// indices count the filters of all banks assigned to a FIFO,
// whether active or not.
func (c *Controller) match(f *canbus.Frame) (fifo int, fmi int, ok bool) {
	fm1r := c.mem.Load(regs.FM1R)
	fs1r := c.mem.Load(regs.FS1R)
	ffa1r := c.mem.Load(regs.FFA1R)
	fa1r := c.mem.Load(regs.FA1R)

	k32 := f.Key32()
	k16 := uint32(f.Key16())

	var next [regs.NumFIFOs]int
	for bank := 0; bank < regs.NumFilterBanks; bank++ {
		bit := uint32(1) << bank
		n := 0
		if ffa1r&bit != 0 {
			n = 1
		}
		list := fm1r&bit != 0
		wide := fs1r&bit != 0
		base := next[n]
		next[n] += filterCount(list, wide)
		if fa1r&bit == 0 {
			continue
		}
		fr1 := c.mem.Load(regs.FilterReg(bank, 0))
		fr2 := c.mem.Load(regs.FilterReg(bank, 1))
		if i, hit := matchBank(list, wide, fr1, fr2, k32, k16); hit {
			return n, base + i, true
		}
	}
	return 0, 0, false
}

func filterCount(list, wide bool) int {
	switch {
	case wide && !list:
		return 1
	case wide && list:
		return 2
	case !wide && !list:
		return 2
	}
	return 4
}

// matchBank returns the index of the first filter of the bank
// accepting the keys.
func matchBank(list, wide bool, fr1, fr2, k32, k16 uint32) (int, bool) {
	lo := func(w uint32) uint32 { return w & 0xFFFF }
	hi := func(w uint32) uint32 { return w >> 16 }

	switch {
	case wide && !list:
		return 0, (k32^fr1)&fr2 == 0
	case wide && list:
		if k32 == fr1 {
			return 0, true
		}
		return 1, k32 == fr2
	case !wide && !list:
		if (k16^lo(fr1))&hi(fr1) == 0 {
			return 0, true
		}
		return 1, (k16^lo(fr2))&hi(fr2) == 0
	}
	for i, id := range [4]uint32{lo(fr1), hi(fr1), lo(fr2), hi(fr2)} {
		if k16 == id {
			return i, true
		}
	}
	return 0, false
}
