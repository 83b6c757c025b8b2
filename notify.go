package bxcan

import (
	"fmt"
	"sync/atomic"

	"github.com/knieriem/bxcan/regs"
)

// Notification identifies an event reported by one of the
// controller's interrupt lines.
type Notification uint8

const (
	TxMailbox0Complete Notification = iota
	TxMailbox1Complete
	TxMailbox2Complete
	TxMailbox0Abort
	TxMailbox1Abort
	TxMailbox2Abort
	TxMailbox0Error
	TxMailbox1Error
	TxMailbox2Error
	RxFIFO0Pending
	RxFIFO0Full
	RxFIFO0Overrun
	RxFIFO1Pending
	RxFIFO1Full
	RxFIFO1Overrun
	ErrorWarning
	ErrorPassive
	BusOff
	MultiError
	NumNotifications
)

var notificationNames = [NumNotifications]string{
	"tx mailbox 0 complete",
	"tx mailbox 1 complete",
	"tx mailbox 2 complete",
	"tx mailbox 0 abort",
	"tx mailbox 1 abort",
	"tx mailbox 2 abort",
	"tx mailbox 0 error",
	"tx mailbox 1 error",
	"tx mailbox 2 error",
	"rx fifo 0 pending",
	"rx fifo 0 full",
	"rx fifo 0 overrun",
	"rx fifo 1 pending",
	"rx fifo 1 full",
	"rx fifo 1 overrun",
	"error warning",
	"error passive",
	"bus-off",
	"multi error",
}

func (n Notification) String() string {
	if n < NumNotifications {
		return notificationNames[n]
	}
	return fmt.Sprintf("Notification(%d)", uint8(n))
}

func txComplete(mb int) Notification { return TxMailbox0Complete + Notification(mb) }
func txAbort(mb int) Notification    { return TxMailbox0Abort + Notification(mb) }
func txError(mb int) Notification    { return TxMailbox0Error + Notification(mb) }
func rxPending(f FIFO) Notification  { return RxFIFO0Pending + 3*Notification(f) }
func rxFull(f FIFO) Notification     { return RxFIFO0Full + 3*Notification(f) }
func rxOverrun(f FIFO) Notification  { return RxFIFO0Overrun + 3*Notification(f) }

// ier returns the interrupt enable bits of n. Error kinds also
// need the ERRIE umbrella bit.
func (n Notification) ier() uint32 {
	switch {
	case n <= TxMailbox2Error:
		return regs.TMEIE.Mask()
	case n <= RxFIFO1Overrun:
		f := FIFO((n - RxFIFO0Pending) / 3)
		switch (n - RxFIFO0Pending) % 3 {
		case 0:
			return regs.FMPIE(int(f)).Mask()
		case 1:
			return regs.FFIE(int(f)).Mask()
		}
		return regs.FOVIE(int(f)).Mask()
	case n == ErrorWarning:
		return regs.EWGIE.Mask()
	case n == ErrorPassive:
		return regs.EPVIE.Mask()
	case n == BusOff:
		return regs.BOFIE.Mask()
	}
	return regs.LECIE.Mask()
}

const (
	txKinds    = 1<<(TxMailbox2Error+1) - 1
	errorKinds = 1<<ErrorWarning | 1<<ErrorPassive | 1<<BusOff | 1<<MultiError
)

// Callback is invoked from an interrupt entry point when an enabled
// event occurs.
type Callback func(n Notification)

type slot struct {
	cb Callback
}

// noCallback marks a table slot without callback.
var noCallback = new(slot)

// Table maps each notification kind to a callback. It is populated
// while the application configures the controller and read by the
// interrupt entry points; slots are replaced atomically.
type Table struct {
	slots [NumNotifications]atomic.Pointer[slot]
}

func NewTable() *Table {
	t := new(Table)
	for i := range t.slots {
		t.slots[i].Store(noCallback)
	}
	return t
}

// Set stores cb for n. A nil cb empties the slot.
func (t *Table) Set(n Notification, cb Callback) {
	s := noCallback
	if cb != nil {
		s = &slot{cb: cb}
	}
	t.slots[n].Store(s)
}

// Lookup returns the callback for n, if any.
func (t *Table) Lookup(n Notification) (Callback, bool) {
	s := t.slots[n].Load()
	if s == nil || s == noCallback {
		return nil, false
	}
	return s.cb, true
}

// EnableNotification stores cb for n and enables the interrupt
// sources reporting n. A nil cb enables the event without running
// any code; its flags are still cleared by the entry points.
func (d *Dev) EnableNotification(n Notification, cb Callback) error {
	if n >= NumNotifications {
		return &RangeError{What: "notification", Value: int(n), Max: int(NumNotifications) - 1}
	}
	d.table.Set(n, cb)
	d.enabled.Or(1 << n)

	bits := n.ier()
	if errorKinds&(1<<n) != 0 {
		bits |= regs.ERRIE.Mask()
	}
	regs.At(d.r, regs.IER).SetBits(bits)
	return nil
}

// DisableNotification disables the interrupt sources of n. The
// callback stays in the table. Enable bits shared with other kinds
// stay set while one of those kinds is enabled.
func (d *Dev) DisableNotification(n Notification) error {
	if n >= NumNotifications {
		return &RangeError{What: "notification", Value: int(n), Max: int(NumNotifications) - 1}
	}
	still := d.enabled.And(^uint32(1<<n)) &^ (1 << n)

	var bits uint32
	switch {
	case n <= TxMailbox2Error:
		if still&txKinds == 0 {
			bits = regs.TMEIE.Mask()
		}
	case errorKinds&(1<<n) != 0:
		bits = n.ier()
		if still&errorKinds == 0 {
			bits |= regs.ERRIE.Mask()
		}
	default:
		bits = n.ier()
	}
	regs.At(d.r, regs.IER).ClearBits(bits)
	return nil
}

// NotificationEnabled reports whether n has been enabled.
func (d *Dev) NotificationEnabled(n Notification) bool {
	return n < NumNotifications && d.enabled.Load()&(1<<n) != 0
}

// notify runs the callback of n if n is enabled.
func (d *Dev) notify(n Notification) {
	if !d.NotificationEnabled(n) {
		return
	}
	if cb, ok := d.table.Lookup(n); ok {
		cb(n)
	}
}
