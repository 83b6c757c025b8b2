package bxcan

import (
	"errors"
	"fmt"
	"testing"

	"github.com/knieriem/bxcan/periph/afio"
	"github.com/knieriem/bxcan/periph/gpio"
	"github.com/knieriem/bxcan/periph/rcc"
	"github.com/knieriem/bxcan/regs"
)

// recorder logs the collaborator calls made by Init.
type recorder struct {
	calls []string
	fail  error
}

func (r *recorder) Enable(bus rcc.Bus, bit uint) error {
	r.calls = append(r.calls, fmt.Sprintf("clock %v.%d", bus, bit))
	return r.fail
}

func (r *recorder) Remap(sel afio.Remap) error {
	r.calls = append(r.calls, "remap "+sel.String())
	return nil
}

func (r *recorder) SetMode(port gpio.Port, pin uint, mode gpio.Mode) error {
	r.calls = append(r.calls, fmt.Sprintf("pin %v%d %v", port, pin, mode))
	return nil
}

// ackedMem returns registers that already acknowledge
// initialization mode, so Init does not block.
func ackedMem() *regs.Mem {
	return regs.NewMem(map[uint32]uint32{
		regs.MSR: regs.INAK.Mask(),
	})
}

func TestInitSequence(t *testing.T) {
	rec := new(recorder)
	m := ackedMem()
	d := NewDevice(m, Board{Clocks: rec, Remapper: rec, Pins: rec})
	if err := d.Init(DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"clock APB2.3",
		"clock APB2.0",
		"clock APB1.25",
		"remap CAN",
		"pin PB8 input floating",
		"pin PB9 alternate push-pull 2MHz",
	}
	if fmt.Sprint(rec.calls) != fmt.Sprint(want) {
		t.Errorf("calls:\n%q\nwant\n%q", rec.calls, want)
	}
	mcr := m.Load(regs.MCR)
	if mcr&regs.SLEEP.Mask() != 0 || mcr&regs.INRQ.Mask() == 0 {
		t.Errorf("MCR = %#x", mcr)
	}
	// default policy: retransmission on, priority by identifier
	if mcr&(regs.NART.Mask()|regs.TXFP.Mask()) != 0 {
		t.Errorf("MCR policy bits = %#x", mcr)
	}
}

func TestInitRouteError(t *testing.T) {
	rec := &recorder{fail: &rcc.RangeError{Bus: rcc.APB2, Bit: 3}}
	d := NewDevice(ackedMem(), Board{Clocks: rec})
	var re *rcc.RangeError
	if err := d.Init(DefaultConfig()); !errors.As(err, &re) {
		t.Fatalf("got %v", err)
	}
}

func TestModeBits(t *testing.T) {
	tests := []struct {
		mode           Mode
		silent, loopbk bool
	}{
		{ModeNormal, false, false},
		{ModeLoopback, false, true},
		{ModeSilent, true, false},
		{ModeSilentLoopback, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			m := ackedMem()
			d := NewDevice(m, Board{})
			cfg := DefaultConfig()
			cfg.Mode = tt.mode
			if err := d.Init(cfg); err != nil {
				t.Fatal(err)
			}
			btr := regs.At(m, regs.BTR)
			if btr.Test(regs.SILM) != tt.silent || btr.Test(regs.LBKM) != tt.loopbk {
				t.Errorf("BTR = %#x", btr.Load())
			}
			if d.Mode() != tt.mode {
				t.Errorf("Mode() = %v", d.Mode())
			}
		})
	}
}

func TestBitTimingFields(t *testing.T) {
	for b := Baud50k; b < numBaudRates; b++ {
		m := ackedMem()
		d := NewDevice(m, Board{})
		cfg := DefaultConfig()
		cfg.BaudRate = b
		if err := d.Init(cfg); err != nil {
			t.Fatal(err)
		}
		want := timings[b]
		btr := m.Load(regs.BTR)
		if regs.TS1.Get(btr) != want.TS1-1 || regs.TS2.Get(btr) != want.TS2-1 || regs.BRP.Get(btr) != want.BRP-1 {
			t.Errorf("%v: BTR = %#x", b, btr)
		}
		if d.BitTiming() != want {
			t.Errorf("%v: BitTiming() = %+v", b, d.BitTiming())
		}
	}
}

func TestPolicyBits(t *testing.T) {
	m := ackedMem()
	d := NewDevice(m, Board{})
	cfg := Config{
		TimeTriggered:     true,
		AutoBusOff:        true,
		AutoWakeUp:        true,
		ReceiveFIFOLocked: true,
	}
	if err := d.Init(cfg); err != nil {
		t.Fatal(err)
	}
	want := regs.TTCM.Mask() | regs.ABOM.Mask() | regs.AWUM.Mask() | regs.NART.Mask() |
		regs.RFLM.Mask() | regs.TXFP.Mask() | regs.INRQ.Mask()
	if mcr := m.Load(regs.MCR); mcr != want {
		t.Errorf("MCR = %#x, want %#x", mcr, want)
	}
}

func TestCustomWait(t *testing.T) {
	var polls int
	wait := func(done func() bool) error {
		polls++
		if !done() {
			return errors.New("not done")
		}
		return nil
	}
	d := NewDevice(ackedMem(), Board{Wait: wait})
	if err := d.Init(DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if polls != 2 {
		t.Errorf("%d waits, want 2", polls)
	}
}
