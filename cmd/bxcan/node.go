package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/periph/afio"
	"github.com/knieriem/bxcan/periph/gpio"
	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/periph/rcc"
	"github.com/knieriem/bxcan/regs"
	"github.com/knieriem/bxcan/sim"
)

// simNode is the driver operating a controller model, with the
// collaborators and the interrupt controller modeled as well.
type simNode struct {
	*bxcan.Dev
	hw *sim.Controller
	rx func(f canbus.Frame, fmi uint8)
}

func newSimNode(cfg bxcan.Config, filter bxcan.Filter, rx func(canbus.Frame, uint8)) (*simNode, error) {
	hw := sim.New()
	board := bxcan.Board{
		Clocks:   rcc.New(regs.NewMem(nil)),
		Remapper: afio.New(regs.NewMem(nil)),
		Pins:     gpio.New(regs.NewMem(nil)),
	}
	d := bxcan.NewDevice(hw, board)
	if err := d.Init(cfg); err != nil {
		return nil, err
	}
	d.EnterFilterInit()
	if err := d.ConfigureFilter(filter); err != nil {
		return nil, err
	}
	d.LeaveFilterInit()

	nv := nvic.New(sim.NewNVIC())
	if err := d.AttachInterrupts(nv, 2); err != nil {
		return nil, err
	}
	hw.OnIRQ(func(irq nvic.IRQ) { nv.Raise(irq) })

	n := &simNode{Dev: d, hw: hw, rx: rx}
	if err := d.EnableNotification(bxcan.RxFIFO0Pending, n.drain); err != nil {
		return nil, err
	}
	for _, kind := range []bxcan.Notification{
		bxcan.TxMailbox0Complete, bxcan.TxMailbox1Complete, bxcan.TxMailbox2Complete,
		bxcan.TxMailbox0Error, bxcan.TxMailbox1Error, bxcan.TxMailbox2Error,
		bxcan.ErrorWarning, bxcan.ErrorPassive, bxcan.BusOff,
	} {
		if err := d.EnableNotification(kind, n.event); err != nil {
			return nil, err
		}
	}
	if err := d.Start(); err != nil {
		return nil, err
	}
	vlogf("controller started: %v, %v", cfg.Mode, cfg.BaudRate)
	return n, nil
}

func (n *simNode) drain(bxcan.Notification) {
	var f bxcan.RxFrame
	var data [8]byte
	for n.Receive(bxcan.FIFO0, &f, &data) == nil {
		n.rx(canbus.Frame{
			ID:       f.ID,
			Extended: f.Extended,
			RTR:      f.Remote,
			Len:      min(f.DLC, 8),
			Data:     data,
		}, f.FilterMatchIndex)
	}
}

func (n *simNode) event(kind bxcan.Notification) {
	switch kind {
	case bxcan.ErrorWarning, bxcan.ErrorPassive, bxcan.BusOff:
		tec, rec := n.ErrorCounters()
		vlogf("%v (tec %d, rec %d, last error %v)", kind, tec, rec, n.LastErrorCode())
	default:
		vlogf("%v", kind)
	}
}

// send queues f and lets the model transmit pending mailboxes.
func (n *simNode) send(f canbus.Frame) error {
	tx := bxcan.TxFrame{ID: f.ID, Extended: f.Extended, Remote: f.RTR, DLC: f.Len}
	mb, err := n.Transmit(&tx, f.Payload())
	if errors.Is(err, bxcan.ErrNoMailbox) {
		n.hw.Flush(regs.NumMailboxes)
		mb, err = n.Transmit(&tx, f.Payload())
	}
	if err != nil {
		return err
	}
	vlogf("%v queued in mailbox %d", f, mb)
	n.hw.Flush(regs.NumMailboxes)
	return nil
}

// filterFlags describes the acceptance filter of bank 0.
type filterFlags struct {
	id, mask string
	ext      bool
}

func (ff *filterFlags) filter() (bxcan.Filter, error) {
	if ff.id == "" {
		return bxcan.AcceptAll(0, bxcan.FIFO0), nil
	}
	id, err := parseID(ff.id)
	if err != nil {
		return bxcan.Filter{}, err
	}
	mask := uint32(canbus.MaxStdID)
	if ff.ext {
		mask = canbus.MaxExtID
	}
	if ff.mask != "" {
		if mask, err = parseID(ff.mask); err != nil {
			return bxcan.Filter{}, err
		}
	}
	return bxcan.MatchID(0, id, mask, ff.ext, bxcan.FIFO0), nil
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q", s)
	}
	return uint32(v), nil
}

// frameFlags describes the frames a command transmits.
type frameFlags struct {
	id   string
	data string
	ext  bool
}

func (ff *frameFlags) frame() (canbus.Frame, error) {
	id, err := parseID(ff.id)
	if err != nil {
		return canbus.Frame{}, err
	}
	var data []byte
	for _, s := range strings.Fields(strings.ReplaceAll(ff.data, ",", " ")) {
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return canbus.Frame{}, fmt.Errorf("invalid data byte %q", s)
		}
		data = append(data, byte(v))
	}
	f, err := canbus.NewFrame(id, data)
	if err != nil {
		return f, err
	}
	if ff.ext {
		f.Extended = true
	}
	return f, nil
}
