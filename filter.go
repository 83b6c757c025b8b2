package bxcan

import (
	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/regs"
)

type FilterMode uint8

const (
	// MaskMode accepts identifiers whose key matches ID at all bits
	// set in Mask.
	MaskMode FilterMode = iota
	// ListMode accepts identifiers whose key equals one of the
	// listed identifiers.
	ListMode
)

type FilterScale uint8

const (
	// Scale16 splits a bank into two 16-bit filters.
	Scale16 FilterScale = iota
	Scale32
)

// Filter describes the configuration of one acceptance filter bank.
//
// The identifiers and masks are halves of the filter keys described
// in package canbus. With Scale32, IDHigh:IDLow forms the first
// 32-bit key and MaskIDHigh:MaskIDLow either its mask (MaskMode) or
// a second key (ListMode). With Scale16, the bank holds the two
// filters (IDLow, MaskIDLow) and (IDHigh, MaskIDHigh), where the
// second member of each pair is again a mask or a second key.
type Filter struct {
	Bank       int
	Mode       FilterMode
	Scale      FilterScale
	IDHigh     uint16
	IDLow      uint16
	MaskIDHigh uint16
	MaskIDLow  uint16
	FIFO       FIFO
}

// AcceptAll returns a filter on bank that passes every frame to fifo.
func AcceptAll(bank int, fifo FIFO) Filter {
	return Filter{Bank: bank, Mode: MaskMode, Scale: Scale32, FIFO: fifo}
}

// MatchID returns a 32-bit mask filter passing data and remote frames
// whose identifier matches id at the bits set in mask.
//
// The filter is built from the keys of package canbus, which follow
// the controller model in package sim, not the silicon register
// layout. It is not suitable for a controller accessed through MMIO.
func MatchID(bank int, id, mask uint32, extended bool, fifo FIFO) Filter {
	k := canbus.Key32(id, extended, false)
	var m uint32
	if extended {
		m = canbus.Key32(mask, true, false)
	} else {
		// the IDE bit keeps extended frames out
		m = canbus.Key32(mask, false, false) | canbus.Key32(0, true, false)
	}
	return Filter{
		Bank:       bank,
		Mode:       MaskMode,
		Scale:      Scale32,
		IDHigh:     uint16(k >> 16),
		IDLow:      uint16(k),
		MaskIDHigh: uint16(m >> 16),
		MaskIDLow:  uint16(m),
		FIFO:       fifo,
	}
}

// EnterFilterInit puts all filter banks into initialization mode,
// which is required by ConfigureFilter. Reception through the
// filters is suspended until LeaveFilterInit.
func (d *Dev) EnterFilterInit() {
	d.reg(regs.FMR).SetFlag(regs.FINIT, true)
}

func (d *Dev) LeaveFilterInit() {
	d.reg(regs.FMR).SetFlag(regs.FINIT, false)
}

// FilterInit reports whether the filter banks are in initialization mode.
func (d *Dev) FilterInit() bool {
	return d.reg(regs.FMR).Test(regs.FINIT)
}

// ConfigureFilter programs and activates a filter bank.
func (d *Dev) ConfigureFilter(f Filter) error {
	if err := checkRange("filter bank", f.Bank, regs.NumFilterBanks-1); err != nil {
		return err
	}
	if err := checkRange("fifo", int(f.FIFO), regs.NumFIFOs-1); err != nil {
		return err
	}
	if f.Mode > ListMode {
		return &RangeError{What: "filter mode", Value: int(f.Mode), Max: int(ListMode)}
	}
	if f.Scale > Scale32 {
		return &RangeError{What: "filter scale", Value: int(f.Scale), Max: int(Scale32)}
	}
	if !d.FilterInit() {
		return ErrFilterNotInit
	}
	bit := regs.Bit(uint8(f.Bank))

	d.reg(regs.FA1R).SetFlag(bit, false)
	d.reg(regs.FM1R).SetFlag(bit, f.Mode == ListMode)
	d.reg(regs.FS1R).SetFlag(bit, f.Scale == Scale32)

	var fr1, fr2 uint32
	if f.Scale == Scale32 {
		fr1 = uint32(f.IDHigh)<<16 | uint32(f.IDLow)
		fr2 = uint32(f.MaskIDHigh)<<16 | uint32(f.MaskIDLow)
	} else {
		// first filter in FR1, its ID in the low half
		fr1 = uint32(f.MaskIDLow)<<16 | uint32(f.IDLow)
		fr2 = uint32(f.MaskIDHigh)<<16 | uint32(f.IDHigh)
	}
	d.r.Store(regs.FilterReg(f.Bank, 0), fr1)
	d.r.Store(regs.FilterReg(f.Bank, 1), fr2)

	d.reg(regs.FFA1R).SetFlag(bit, f.FIFO == FIFO1)
	d.reg(regs.FA1R).SetFlag(bit, true)
	return nil
}

// DeactivateFilter disables a filter bank, keeping its configuration.
func (d *Dev) DeactivateFilter(bank int) error {
	if err := checkRange("filter bank", bank, regs.NumFilterBanks-1); err != nil {
		return err
	}
	if !d.FilterInit() {
		return ErrFilterNotInit
	}
	d.reg(regs.FA1R).SetFlag(regs.Bit(uint8(bank)), false)
	return nil
}
