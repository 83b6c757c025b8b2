package nvic_test

import (
	"errors"
	"testing"

	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/sim"
)

func TestEnable(t *testing.T) {
	r := sim.NewNVIC()
	c := nvic.New(r)
	if err := c.Enable(nvic.CAN1RX0); err != nil {
		t.Fatal(err)
	}
	if err := c.Enable(nvic.CAN1SCE); err != nil {
		t.Fatal(err)
	}
	if v := r.Load(nvic.ISER); v != 1<<20|1<<22 {
		t.Errorf("ISER0 = %#x", v)
	}
	c.Disable(nvic.CAN1RX0)
	if c.Enabled(nvic.CAN1RX0) || !c.Enabled(nvic.CAN1SCE) {
		t.Errorf("ISER0 = %#x", r.Load(nvic.ISER))
	}
	if c.Enabled(nvic.NumIRQ) {
		t.Error("line beyond range enabled")
	}
	var re *nvic.RangeError
	if err := c.Enable(nvic.NumIRQ); !errors.As(err, &re) {
		t.Errorf("got %v", err)
	}
}

func TestPriority(t *testing.T) {
	r := sim.NewNVIC()
	c := nvic.New(r)
	if err := c.SetPriority(nvic.CAN1RX1, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPriority(nvic.CAN1SCE, nvic.MaxPriority); err != nil {
		t.Fatal(err)
	}
	// IRQ 21 and 22 are bytes 1 and 2 of IPR5
	if v := r.Load(nvic.IPR + 20); v != 0x00F05000 {
		t.Errorf("IPR5 = %#08x", v)
	}
	if p, _ := c.Priority(nvic.CAN1RX1); p != 5 {
		t.Errorf("priority %d", p)
	}
	err := c.SetPriority(nvic.CAN1TX, 16)
	var re *nvic.RangeError
	if !errors.As(err, &re) || re.Priority != 16 {
		t.Fatalf("got %v", err)
	}
	if err.Error() != "nvic: priority 16 of CAN1_TX out of range 0..15" {
		t.Error(err)
	}
}

func TestPendingDelivery(t *testing.T) {
	c := nvic.New(sim.NewNVIC())
	n := 0
	c.Handle(nvic.CAN1TX, func() { n++ })
	c.Raise(nvic.CAN1TX)
	c.Raise(nvic.CAN1TX)
	if n != 0 || !c.Pending(nvic.CAN1TX) {
		t.Fatal("disabled line not latched")
	}
	c.Enable(nvic.CAN1TX)
	if n != 1 || c.Pending(nvic.CAN1TX) {
		t.Errorf("after enable: %d calls, pending %v", n, c.Pending(nvic.CAN1TX))
	}
	c.Raise(nvic.CAN1TX)
	if n != 2 {
		t.Errorf("%d calls", n)
	}
}

func TestRaiseWhileActive(t *testing.T) {
	c := nvic.New(sim.NewNVIC())
	depth, maxDepth, n := 0, 0, 0
	c.Handle(nvic.CAN1RX0, func() {
		depth++
		maxDepth = max(maxDepth, depth)
		n++
		if n < 3 {
			c.Raise(nvic.CAN1RX0)
		}
		depth--
	})
	c.Enable(nvic.CAN1RX0)
	c.Raise(nvic.CAN1RX0)
	if n != 3 {
		t.Errorf("%d calls, want 3", n)
	}
	if maxDepth != 1 {
		t.Error("handler re-entered")
	}
	if c.Pending(nvic.CAN1RX0) {
		t.Error("line still pending")
	}
}

func TestIRQString(t *testing.T) {
	if s := nvic.CAN1SCE.String(); s != "CAN1_SCE" {
		t.Error(s)
	}
	if s := nvic.IRQ(37).String(); s != "IRQ37" {
		t.Error(s)
	}
}
