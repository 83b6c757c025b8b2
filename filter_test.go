package bxcan

import (
	"errors"
	"testing"

	"github.com/knieriem/bxcan/regs"
)

func TestFilterLayouts(t *testing.T) {
	tests := []struct {
		name     string
		f        Filter
		fr1, fr2 uint32
	}{
		{"32 mask", Filter{Mode: MaskMode, Scale: Scale32, IDHigh: 0x123, IDLow: 0x4567, MaskIDHigh: 0x7FF, MaskIDLow: 0x89AB},
			0x01234567, 0x07FF89AB},
		{"32 list", Filter{Mode: ListMode, Scale: Scale32, IDHigh: 0x123, IDLow: 0x4567, MaskIDHigh: 0x7FF, MaskIDLow: 0x89AB},
			0x01234567, 0x07FF89AB},
		{"16 mask", Filter{Mode: MaskMode, Scale: Scale16, IDHigh: 0x123, IDLow: 0x4567, MaskIDHigh: 0x7FF, MaskIDLow: 0x89AB},
			0x89AB4567, 0x07FF0123},
		{"16 list", Filter{Mode: ListMode, Scale: Scale16, IDHigh: 0x123, IDLow: 0x4567, MaskIDHigh: 0x7FF, MaskIDLow: 0x89AB},
			0x89AB4567, 0x07FF0123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := regs.NewMem(map[uint32]uint32{regs.FMR: regs.FINIT.Mask()})
			d := NewDevice(m, Board{})
			f := tt.f
			f.Bank = 5
			f.FIFO = FIFO1
			if err := d.ConfigureFilter(f); err != nil {
				t.Fatal(err)
			}
			if v := m.Load(regs.FilterReg(5, 0)); v != tt.fr1 {
				t.Errorf("FR1 = %#08x, want %#08x", v, tt.fr1)
			}
			if v := m.Load(regs.FilterReg(5, 1)); v != tt.fr2 {
				t.Errorf("FR2 = %#08x, want %#08x", v, tt.fr2)
			}
			bit := uint32(1 << 5)
			if (m.Load(regs.FM1R)&bit != 0) != (f.Mode == ListMode) {
				t.Error("mode bit")
			}
			if (m.Load(regs.FS1R)&bit != 0) != (f.Scale == Scale32) {
				t.Error("scale bit")
			}
			if m.Load(regs.FFA1R) != bit || m.Load(regs.FA1R) != bit {
				t.Error("bank not assigned to FIFO 1 and active")
			}
		})
	}
}

func TestFilterInitRequired(t *testing.T) {
	m := regs.NewMem(nil)
	d := NewDevice(m, Board{})
	if err := d.ConfigureFilter(AcceptAll(0, FIFO0)); err != ErrFilterNotInit {
		t.Fatalf("got %v", err)
	}
	d.EnterFilterInit()
	if err := d.ConfigureFilter(AcceptAll(0, FIFO0)); err != nil {
		t.Fatal(err)
	}
	if err := d.DeactivateFilter(0); err != nil {
		t.Fatal(err)
	}
	if m.Load(regs.FA1R) != 0 {
		t.Error("bank 0 still active")
	}
	d.LeaveFilterInit()
	if d.FilterInit() {
		t.Error("still in filter init mode")
	}
}

func TestFilterRange(t *testing.T) {
	d := NewDevice(regs.NewMem(map[uint32]uint32{regs.FMR: 1}), Board{})
	var re *RangeError
	if err := d.ConfigureFilter(Filter{Bank: 14}); !errors.As(err, &re) || re.Value != 14 {
		t.Fatalf("bank 14: %v", err)
	}
	if err := d.ConfigureFilter(Filter{Bank: 0, FIFO: 2}); !errors.As(err, &re) || re.What != "fifo" {
		t.Fatalf("fifo 2: %v", err)
	}
	if err := d.ConfigureFilter(Filter{Bank: 0, Mode: 2}); !errors.As(err, &re) || re.What != "filter mode" {
		t.Fatalf("mode 2: %v", err)
	}
	if err := d.DeactivateFilter(-1); !errors.As(err, &re) {
		t.Fatalf("bank -1: %v", err)
	}
}

func TestMatchID(t *testing.T) {
	f := MatchID(3, 0x123, 0x7FF, false, FIFO0)
	if f.IDHigh != 0x123 || f.IDLow != 0 || f.MaskIDHigh != 0x47FF || f.MaskIDLow != 0 {
		t.Errorf("std: %+v", f)
	}
	f = MatchID(3, 0x18DAF110, 0x1FFFFF00, true, FIFO1)
	if f.IDHigh != 0x58DA || f.IDLow != 0xF110 || f.MaskIDHigh != 0x5FFF || f.MaskIDLow != 0xFF00 {
		t.Errorf("ext: %+v", f)
	}
}
