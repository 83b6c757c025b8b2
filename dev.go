// Package bxcan drives a basic extended CAN controller with three
// transmit mailboxes, two receive FIFOs and fourteen acceptance
// filter banks, as found in STM32F1 microcontrollers.
package bxcan

import (
	"fmt"
	"sync/atomic"

	"github.com/knieriem/can"

	"github.com/knieriem/bxcan/regs"
)

type Dev struct {
	r     regs.Bus
	board Board
	wait  WaitFunc
	cfg   Config

	table   *Table
	enabled atomic.Uint32 // one bit per Notification

	lec      atomic.Uint32 // ErrorCode captured by HandleSCE
	readFIFO FIFO          // next FIFO tried by Read
}

// NewDevice returns a driver for the controller registers
// accessible through r.
func NewDevice(r regs.Bus, b Board) *Dev {
	d := new(Dev)
	d.r = r
	d.board = b
	d.table = b.Notifications
	if d.table == nil {
		d.table = NewTable()
	}
	d.wait = b.Wait
	if d.wait == nil {
		d.wait = Spin
	}
	return d
}

// Notifications returns the dispatch table of the controller.
func (d *Dev) Notifications() *Table {
	return d.table
}

func (d *Dev) reg(off uint32) regs.Reg {
	return regs.At(d.r, off)
}

// Init routes clock and pins to the controller, wakes it up, and
// applies cfg. The controller is left in initialization mode; use
// Start to join the bus.
func (d *Dev) Init(cfg Config) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	if cfg.AckTimeout > 0 {
		d.wait = Timeout(cfg.AckTimeout)
	} else if d.board.Wait != nil {
		d.wait = d.board.Wait
	} else {
		d.wait = Spin
	}

	err = d.board.route()
	if err != nil {
		return fmt.Errorf("bxcan: routing clock and pins: %w", err)
	}

	mcr := d.reg(regs.MCR)
	msr := d.reg(regs.MSR)

	// Leave sleep mode.
	mcr.SetFlag(regs.SLEEP, false)
	err = d.wait(func() bool { return !msr.Test(regs.SLAK) })
	if err != nil {
		return fmt.Errorf("bxcan: leaving sleep mode: %w", err)
	}

	err = d.enterInit()
	if err != nil {
		return err
	}

	v := mcr.Load()
	v = regs.TTCM.Put(v, b2u(cfg.TimeTriggered))
	v = regs.ABOM.Put(v, b2u(cfg.AutoBusOff))
	v = regs.AWUM.Put(v, b2u(cfg.AutoWakeUp))
	v = regs.NART.Put(v, b2u(!cfg.AutoRetransmission))
	v = regs.RFLM.Put(v, b2u(cfg.ReceiveFIFOLocked))
	v = regs.TXFP.Put(v, b2u(!cfg.TxPriorityByID))
	mcr.Store(v)

	bt := timings[cfg.BaudRate]
	btr := regs.TS1.Val(bt.TS1-1) | regs.TS2.Val(bt.TS2-1) | regs.BRP.Val(bt.BRP-1)
	btr |= regs.LBKM.Val(b2u(cfg.Mode.loopback()))
	btr |= regs.SILM.Val(b2u(cfg.Mode.silent()))
	d.r.Store(regs.BTR, btr)

	d.cfg = cfg
	return nil
}

func (d *Dev) enterInit() error {
	d.reg(regs.MCR).SetFlag(regs.INRQ, true)
	msr := d.reg(regs.MSR)
	err := d.wait(func() bool { return msr.Test(regs.INAK) })
	if err != nil {
		return fmt.Errorf("bxcan: entering initialization mode: %w", err)
	}
	return nil
}

// Start leaves initialization mode; the controller synchronizes
// with the bus and begins to transmit and receive.
func (d *Dev) Start() error {
	d.reg(regs.MCR).SetFlag(regs.INRQ, false)
	msr := d.reg(regs.MSR)
	err := d.wait(func() bool { return !msr.Test(regs.INAK) })
	if err != nil {
		return fmt.Errorf("bxcan: leaving initialization mode: %w", err)
	}
	return nil
}

// Stop returns to initialization mode.
func (d *Dev) Stop() error {
	return d.enterInit()
}

// Initializing reports whether the controller has acknowledged
// initialization mode.
func (d *Dev) Initializing() bool {
	return d.reg(regs.MSR).Test(regs.INAK)
}

// Config returns the configuration applied by the last Init.
func (d *Dev) Config() Config {
	return d.cfg
}

// BitTiming reads back the programmed bit timing.
func (d *Dev) BitTiming() BitTiming {
	btr := d.reg(regs.BTR).Load()
	return BitTiming{
		TS1: regs.TS1.Get(btr) + 1,
		TS2: regs.TS2.Get(btr) + 1,
		BRP: regs.BRP.Get(btr) + 1,
	}
}

// Mode reads back the programmed test mode bits.
func (d *Dev) Mode() Mode {
	btr := d.reg(regs.BTR)
	silent, loop := btr.Test(regs.SILM), btr.Test(regs.LBKM)
	switch {
	case silent && loop:
		return ModeSilentLoopback
	case silent:
		return ModeSilent
	case loop:
		return ModeLoopback
	}
	return ModeNormal
}

// Write transmits m using any empty mailbox.
func (d *Dev) Write(m *can.Msg) error {
	if m.Len < 0 || m.Len > 8 {
		return &RangeError{What: "message length", Value: m.Len, Max: 8}
	}
	f := TxFrame{
		ID:       m.Id,
		Extended: m.ExtFrame(),
		Remote:   m.Test(can.RTRMsg),
		DLC:      uint8(m.Len),
	}
	data := m.Data[:m.Len]
	if f.Remote {
		data = nil
	}
	_, err := d.Transmit(&f, data)
	return err
}

// Read fetches the oldest frame of one of the receive FIFOs,
// alternating between the FIFOs if both hold frames. It returns
// ErrNoMsg if both are empty.
//
// m.Rx.Time is the time of the call. The controller's own time
// stamp is a free running 16-bit bit time counter that cannot be
// related to wall clock time; it is available through Receive.
func (d *Dev) Read(m *can.Msg) error {
	var f RxFrame
	var data [8]byte
	for i := 0; i < regs.NumFIFOs; i++ {
		fifo := d.readFIFO
		d.readFIFO = (d.readFIFO + 1) % regs.NumFIFOs
		err := d.Receive(fifo, &f, &data)
		if err == ErrFIFOEmpty {
			continue
		}
		if err != nil {
			return err
		}
		m.Flags = 0
		if f.Extended {
			m.Flags |= can.ExtFrame
		}
		if f.Remote {
			m.Flags |= can.RTRMsg
		}
		m.Id = f.ID
		m.Len = int(f.DLC)
		if m.Len > 8 {
			m.Len = 8
		}
		copy(m.Data[:], data[:])
		m.Rx.Time = can.Now()
		return nil
	}
	return ErrNoMsg
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
