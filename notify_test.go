package bxcan

import (
	"testing"

	"github.com/knieriem/bxcan/regs"
)

func TestTableSentinel(t *testing.T) {
	tab := NewTable()
	for n := Notification(0); n < NumNotifications; n++ {
		if _, ok := tab.Lookup(n); ok {
			t.Fatalf("%v: slot not empty", n)
		}
	}
	tab.Set(BusOff, func(Notification) {})
	if _, ok := tab.Lookup(BusOff); !ok {
		t.Fatal("callback not stored")
	}
	tab.Set(BusOff, nil)
	if _, ok := tab.Lookup(BusOff); ok {
		t.Fatal("nil callback not mapped to the empty slot")
	}
}

func TestEnableBits(t *testing.T) {
	tests := []struct {
		n   Notification
		ier uint32
	}{
		{TxMailbox1Abort, regs.TMEIE.Mask()},
		{RxFIFO0Pending, regs.FMPIE0.Mask()},
		{RxFIFO0Full, regs.FFIE0.Mask()},
		{RxFIFO1Overrun, regs.FOVIE1.Mask()},
		{ErrorWarning, regs.EWGIE.Mask() | regs.ERRIE.Mask()},
		{ErrorPassive, regs.EPVIE.Mask() | regs.ERRIE.Mask()},
		{BusOff, regs.BOFIE.Mask() | regs.ERRIE.Mask()},
		{MultiError, regs.LECIE.Mask() | regs.ERRIE.Mask()},
	}
	for _, tt := range tests {
		t.Run(tt.n.String(), func(t *testing.T) {
			m := regs.NewMem(nil)
			d := NewDevice(m, Board{})
			if err := d.EnableNotification(tt.n, nil); err != nil {
				t.Fatal(err)
			}
			if v := m.Load(regs.IER); v != tt.ier {
				t.Errorf("IER = %#x, want %#x", v, tt.ier)
			}
			if err := d.DisableNotification(tt.n); err != nil {
				t.Fatal(err)
			}
			if v := m.Load(regs.IER); v != 0 {
				t.Errorf("IER after disable = %#x", v)
			}
		})
	}
}

func TestSharedEnableBits(t *testing.T) {
	m := regs.NewMem(nil)
	d := NewDevice(m, Board{})
	d.EnableNotification(TxMailbox0Complete, nil)
	d.EnableNotification(TxMailbox2Error, nil)
	d.EnableNotification(BusOff, nil)
	d.EnableNotification(MultiError, nil)

	d.DisableNotification(TxMailbox0Complete)
	if !regs.At(m, regs.IER).Test(regs.TMEIE) {
		t.Error("TMEIE cleared while mailbox 2 error is enabled")
	}
	d.DisableNotification(BusOff)
	ier := regs.At(m, regs.IER)
	if !ier.Test(regs.ERRIE) || ier.Test(regs.BOFIE) || !ier.Test(regs.LECIE) {
		t.Errorf("IER = %#x", ier.Load())
	}
	d.DisableNotification(MultiError)
	d.DisableNotification(TxMailbox2Error)
	if v := ier.Load(); v != 0 {
		t.Errorf("IER = %#x", v)
	}
	if err := d.EnableNotification(NumNotifications, nil); err == nil {
		t.Error("unknown notification accepted")
	}
}

func TestNotificationNames(t *testing.T) {
	if s := RxFIFO1Full.String(); s != "rx fifo 1 full" {
		t.Error(s)
	}
	if rxOverrun(FIFO1) != RxFIFO1Overrun || txError(2) != TxMailbox2Error || txAbort(1) != TxMailbox1Abort {
		t.Error("kind helpers")
	}
}
