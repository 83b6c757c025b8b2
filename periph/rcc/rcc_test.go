package rcc

import (
	"errors"
	"testing"

	"github.com/knieriem/bxcan/regs"
)

func TestEnable(t *testing.T) {
	m := regs.NewMem(nil)
	c := New(m)

	if err := c.Enable(APB1, CAN1); err != nil {
		t.Fatal(err)
	}
	if err := c.Enable(APB2, IOPB); err != nil {
		t.Fatal(err)
	}
	if err := c.Enable(APB2, AFIO); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := c.Enable(APB2, AFIO); err != nil {
		t.Fatal(err)
	}

	if v := m.Load(apb1enr); v != 1<<25 {
		t.Errorf("APB1ENR = %#x", v)
	}
	if v := m.Load(apb2enr); v != 1<<3|1 {
		t.Errorf("APB2ENR = %#x", v)
	}
	if !c.Enabled(APB1, CAN1) || c.Enabled(AHB, DMA1) {
		t.Error("Enabled mismatch")
	}

	if err := c.Disable(APB2, AFIO); err != nil {
		t.Fatal(err)
	}
	if c.Enabled(APB2, AFIO) || !c.Enabled(APB2, IOPB) {
		t.Error("Disable touched the wrong bit")
	}
}

func TestRange(t *testing.T) {
	c := New(regs.NewMem(nil))
	var re *RangeError

	err := c.Enable(APB1, 32)
	if !errors.As(err, &re) || re.Bit != 32 {
		t.Fatalf("bit 32: %v", err)
	}
	err = c.Enable(Bus(7), 0)
	if !errors.As(err, &re) || re.Bus != 7 {
		t.Fatalf("bus 7: %v", err)
	}
	if c.Enabled(Bus(7), 0) {
		t.Fatal("unknown bus reported enabled")
	}
}
