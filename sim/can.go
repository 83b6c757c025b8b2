// Package sim is a behavioral model of the CAN controller at the
// register level. A Controller implements regs.Bus, so the driver
// can operate on it like on the real peripheral; frames are
// exchanged with other nodes through a canbus.Port.
package sim

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/regs"
)

// Failure selects the outcome of the next transmission attempt.
type Failure uint8

const (
	ArbitrationLost Failure = iota + 1
	TransmitError
)

const (
	mcrMask = 0xFF | 1<<16
	msrW1C  = 1<<2 | 1<<3 | 1<<4 // ERRI, WKUI, SLAKI

	warningLimit = 96
	passiveLimit = 127
	busOffLimit  = 255

	// upper bound of interrupt rounds per event
	maxRounds = 16
)

type mailbox struct {
	ir, dtr, dlr, dhr uint32
	pending           bool
	busy              bool // on the bus, cannot be aborted
	seq               uint64
}

type rxEntry struct {
	ir, dtr, dlr, dhr uint32
}

type fifo struct {
	q         []rxEntry
	last      rxEntry // output window once the FIFO has been emptied
	full, ovr bool
}

// Controller models one CAN controller.
type Controller struct {
	mu  sync.Mutex
	mem *regs.Mem // registers without side effects

	mcr      uint32
	msr      uint32
	tsrFlags uint32
	tx       [regs.NumMailboxes]mailbox
	rx       [regs.NumFIFOs]fifo
	tec, rec int
	lec      uint32
	seq      uint64
	timer    uint16

	ackDelay   int
	ackDue     int
	ackPending bool
	stuck      bool

	fail    Failure
	port    canbus.Port
	irq     func(nvic.IRQ)
	raising bool
}

// New returns a controller in its reset state: asleep, with all
// mailboxes empty and the filter banks in initialization mode.
func New() *Controller {
	c := new(Controller)
	c.reset()
	return c
}

func (c *Controller) reset() {
	c.mem = regs.NewMem(map[uint32]uint32{
		regs.FMR: regs.FINIT.Mask(),
	})
	c.mcr = regs.SLEEP.Mask()
	c.msr = regs.SLAK.Mask()
	c.tsrFlags = 0
	c.tx = [regs.NumMailboxes]mailbox{}
	c.rx = [regs.NumFIFOs]fifo{}
	c.tec, c.rec, c.lec = 0, 0, 0
	c.ackPending = false
	c.fail = 0
}

// Attach connects the controller to a bus. Transmissions in normal
// mode need an acknowledging node behind p to succeed.
func (c *Controller) Attach(p canbus.Port) {
	c.mu.Lock()
	c.port = p
	c.mu.Unlock()
}

// OnIRQ installs the function receiving interrupt requests, like
// nvic.NVIC.Raise. It is called without internal locks held; a line
// is raised again while its condition persists and the handler made
// progress.
func (c *Controller) OnIRQ(fn func(nvic.IRQ)) {
	c.mu.Lock()
	c.irq = fn
	c.mu.Unlock()
}

// SetAckDelay makes the controller acknowledge mode changes only
// after n additional reads of MSR.
func (c *Controller) SetAckDelay(n int) {
	c.mu.Lock()
	c.ackDelay = n
	c.mu.Unlock()
}

// SetStuck stops the controller from acknowledging mode changes.
func (c *Controller) SetStuck(stuck bool) {
	c.mu.Lock()
	c.stuck = stuck
	c.mu.Unlock()
}

// FailNext makes the next transmission attempt fail.
func (c *Controller) FailNext(f Failure) {
	c.mu.Lock()
	c.fail = f
	c.mu.Unlock()
}

// SetErrorCounters overrides the transmit and receive error counters.
func (c *Controller) SetErrorCounters(tec, rec int) {
	c.mu.Lock()
	prev := c.esr()
	c.tec, c.rec = tec, rec
	c.errorsChanged(prev)
	c.mu.Unlock()
	c.raise()
}

// InjectBusError reports a receive error with the given last error
// code, as if a corrupted frame had been seen on the bus.
func (c *Controller) InjectBusError(code uint8) {
	c.mu.Lock()
	prev := c.esr()
	c.rec++
	c.lec = uint32(code) & regs.LEC.Max()
	c.errorsChanged(prev)
	c.mu.Unlock()
	c.raise()
}

func (c *Controller) running() bool {
	return c.msr&(regs.INAK.Mask()|regs.SLAK.Mask()) == 0
}

func (c *Controller) btr() uint32 {
	return c.mem.Load(regs.BTR)
}

func (c *Controller) loopback() bool {
	return c.btr()&regs.LBKM.Mask() != 0
}

func (c *Controller) silent() bool {
	return c.btr()&regs.SILM.Mask() != 0
}

func (c *Controller) busOff() bool {
	return c.tec > busOffLimit
}

// Acknowledges reports whether the controller currently
// acknowledges frames of other nodes.
func (c *Controller) Acknowledges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running() && !c.loopback() && !c.silent() && !c.busOff()
}

func (c *Controller) Load(off uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if off == regs.MSR {
		c.poll()
	}
	return c.load(off)
}

func (c *Controller) load(off uint32) uint32 {
	switch off {
	case regs.MCR:
		return c.mcr
	case regs.MSR:
		return c.msr
	case regs.TSR:
		return c.tsr()
	case regs.RF0R:
		return c.rfr(0)
	case regs.RF1R:
		return c.rfr(1)
	case regs.ESR:
		return c.esr()
	}
	if mb, reg, ok := window(off, regs.TxMailboxBase, regs.NumMailboxes); ok {
		m := &c.tx[mb]
		switch reg {
		case regs.IR:
			if m.pending {
				return m.ir | regs.TXRQ.Mask()
			}
			return m.ir &^ regs.TXRQ.Mask()
		case regs.DTR:
			return m.dtr
		case regs.DLR:
			return m.dlr
		}
		return m.dhr
	}
	if n, reg, ok := window(off, regs.RxFIFOBase, regs.NumFIFOs); ok {
		f := &c.rx[n]
		e := f.last
		if len(f.q) > 0 {
			e = f.q[0]
		}
		switch reg {
		case regs.IR:
			return e.ir
		case regs.DTR:
			return e.dtr
		case regs.DLR:
			return e.dlr
		}
		return e.dhr
	}
	return c.mem.Load(off)
}

// window maps off into one of n mailbox-sized register windows.
func window(off, base uint32, n int) (int, uint32, bool) {
	if off < base || off >= base+uint32(n)*regs.MailboxStride {
		return 0, 0, false
	}
	off -= base
	return int(off / regs.MailboxStride), off % regs.MailboxStride, true
}

func (c *Controller) Store(off uint32, v uint32) {
	c.mu.Lock()
	kick := c.store(off, v)
	c.mu.Unlock()
	if kick {
		c.raise()
	}
}

// store writes a register and reports whether interrupt
// conditions may have changed.
func (c *Controller) store(off uint32, v uint32) bool {
	switch off {
	case regs.MCR:
		if v&regs.RESET.Mask() != 0 {
			c.reset()
			return false
		}
		c.mcr = v & mcrMask
		c.ackPending = true
		c.ackDue = c.ackDelay
		return false
	case regs.MSR:
		c.msr &^= v & msrW1C
		return false
	case regs.TSR:
		c.storeTSR(v)
		return true
	case regs.RF0R, regs.RF1R:
		c.storeRFR(int((off-regs.RF0R)/4), v)
		return false
	case regs.ESR:
		c.lec = regs.LEC.Get(v)
		return false
	case regs.IER:
		c.mem.Store(off, v)
		return true
	case regs.BTR:
		if c.msr&regs.INAK.Mask() != 0 {
			c.mem.Store(off, v)
		}
		return false
	case regs.FM1R, regs.FS1R, regs.FFA1R:
		if c.filterInit() {
			c.mem.Store(off, v)
		}
		return false
	}
	if mb, reg, ok := window(off, regs.TxMailboxBase, regs.NumMailboxes); ok {
		c.storeMailbox(mb, reg, v)
		return false
	}
	if _, _, ok := window(off, regs.RxFIFOBase, regs.NumFIFOs); ok {
		return false
	}
	if off >= regs.FilterReg(0, 0) && off <= regs.FilterReg(regs.NumFilterBanks-1, 1) {
		bank := int(off-regs.FilterBankBase) / 8
		if c.filterInit() || c.mem.Load(regs.FA1R)&(1<<bank) == 0 {
			c.mem.Store(off, v)
		}
		return false
	}
	c.mem.Store(off, v)
	return false
}

func (c *Controller) filterInit() bool {
	return c.mem.Load(regs.FMR)&regs.FINIT.Mask() != 0
}

// poll runs on each read of MSR and completes a pending mode change.
func (c *Controller) poll() {
	if !c.ackPending || c.stuck {
		return
	}
	if c.ackDue > 0 {
		c.ackDue--
		return
	}
	c.ackPending = false
	wasInit := c.msr&regs.INAK.Mask() != 0
	sleep := c.mcr&regs.SLEEP.Mask() != 0
	initMode := c.mcr&regs.INRQ.Mask() != 0 && !sleep
	c.msr = regs.SLAK.Put(c.msr, b2u(sleep))
	c.msr = regs.INAK.Put(c.msr, b2u(initMode))
	if wasInit && !initMode && c.busOff() {
		// leaving initialization mode recovers from bus-off
		c.tec, c.rec = 0, 0
	}
}

func (c *Controller) storeTSR(v uint32) {
	for mb := range c.tx {
		if v&regs.RQCP(mb).Mask() != 0 {
			c.tsrFlags &^= regs.RQCP(mb).Mask() | regs.TXOK(mb).Mask() | regs.ALST(mb).Mask() | regs.TERR(mb).Mask()
		}
		c.tsrFlags &^= v & (regs.TXOK(mb).Mask() | regs.ALST(mb).Mask() | regs.TERR(mb).Mask())
		m := &c.tx[mb]
		if v&regs.ABRQ(mb).Mask() != 0 && m.pending && !m.busy {
			m.pending = false
			c.tsrFlags &^= regs.TXOK(mb).Mask()
			c.tsrFlags |= regs.RQCP(mb).Mask()
		}
	}
}

func (c *Controller) storeRFR(n int, v uint32) {
	f := &c.rx[n]
	if v&regs.FULL.Mask() != 0 {
		f.full = false
	}
	if v&regs.FOVR.Mask() != 0 {
		f.ovr = false
	}
	if v&regs.RFOM.Mask() != 0 && len(f.q) > 0 {
		f.last = f.q[0]
		f.q = f.q[1:]
	}
}

func (c *Controller) storeMailbox(mb int, reg uint32, v uint32) {
	m := &c.tx[mb]
	if m.pending {
		return
	}
	switch reg {
	case regs.IR:
		m.ir = v &^ regs.TXRQ.Mask()
		if v&regs.TXRQ.Mask() != 0 {
			m.pending = true
			c.seq++
			m.seq = c.seq
		}
	case regs.DTR:
		m.dtr = v
	case regs.DLR:
		m.dlr = v
	case regs.DHR:
		m.dhr = v
	}
}

func (c *Controller) tsr() uint32 {
	v := c.tsrFlags
	code := -1
	for mb := range c.tx {
		if !c.tx[mb].pending {
			v |= regs.TME(mb).Mask()
			if code < 0 {
				code = mb
			}
		}
	}
	order := c.order()
	if len(order) > 1 {
		v |= regs.LOW(order[len(order)-1]).Mask()
	}
	if code < 0 {
		code = order[len(order)-1]
	}
	return regs.CODE.Put(v, uint32(code))
}

func (c *Controller) rfr(n int) uint32 {
	f := &c.rx[n]
	v := regs.FMP.Val(uint32(len(f.q)))
	v |= regs.FULL.Val(b2u(f.full))
	v |= regs.FOVR.Val(b2u(f.ovr))
	return v
}

func (c *Controller) esr() uint32 {
	tec, rec := c.tec, c.rec
	v := regs.LEC.Val(c.lec)
	v |= regs.TEC.Val(uint32(min(tec, 255)))
	v |= regs.REC.Val(uint32(min(rec, 255)))
	v |= regs.EWGF.Val(b2u(tec >= warningLimit || rec >= warningLimit))
	v |= regs.EPVF.Val(b2u(tec > passiveLimit || rec > passiveLimit))
	v |= regs.BOFF.Val(b2u(tec > busOffLimit))
	return v
}

// errorsChanged sets MSR.ERRI if an enabled error condition
// appeared since prev was read from ESR.
func (c *Controller) errorsChanged(prev uint32) {
	cur := c.esr()
	ier := c.mem.Load(regs.IER)
	rising := cur &^ prev
	switch {
	case rising&regs.EWGF.Mask() != 0 && ier&regs.EWGIE.Mask() != 0,
		rising&regs.EPVF.Mask() != 0 && ier&regs.EPVIE.Mask() != 0,
		rising&regs.BOFF.Mask() != 0 && ier&regs.BOFIE.Mask() != 0,
		regs.LEC.Get(cur) != 0 && ier&regs.LECIE.Mask() != 0:
		c.msr |= regs.ERRI.Mask()
	}
}

// order returns the pending mailboxes in transmission order.
func (c *Controller) order() []int {
	var mbs []int
	for mb := range c.tx {
		if c.tx[mb].pending {
			mbs = append(mbs, mb)
		}
	}
	byRequest := c.mcr&regs.TXFP.Mask() != 0
	sort.SliceStable(mbs, func(i, j int) bool {
		a, b := &c.tx[mbs[i]], &c.tx[mbs[j]]
		if byRequest {
			return a.seq < b.seq
		}
		return arbitration(a.ir) < arbitration(b.ir)
	})
	return mbs
}

// arbitration returns the bits a frame presents during the
// arbitration phase; the lower value wins.
func arbitration(ir uint32) uint32 {
	base := regs.STID.Get(ir)
	rtr := regs.RTR.Get(ir)
	if ir&regs.IDE.Mask() == 0 {
		return base<<21 | rtr<<20
	}
	// SRR and IDE are recessive
	return base<<21 | 1<<20 | 1<<19 | regs.EXID.Get(ir)<<1 | rtr
}

func (m *mailbox) frame() canbus.Frame {
	var f canbus.Frame
	f.Extended = m.ir&regs.IDE.Mask() != 0
	if f.Extended {
		f.ID = regs.STID.Get(m.ir)<<18 | regs.EXID.Get(m.ir)
	} else {
		f.ID = regs.STID.Get(m.ir)
	}
	f.RTR = m.ir&regs.RTR.Mask() != 0
	f.Len = uint8(min(regs.DLC.Get(m.dtr), 8))
	binary.LittleEndian.PutUint32(f.Data[0:4], m.dlr)
	binary.LittleEndian.PutUint32(f.Data[4:8], m.dhr)
	return f
}

type attempt int

const (
	idle attempt = iota
	injected
	looped
	onBus
)

// Step lets the controller transmit the highest priority pending
// mailbox, if any. It reports whether a transmission was attempted.
func (c *Controller) Step() bool {
	c.mu.Lock()
	c.timer++
	mb, kind, fail := c.begin()
	port := c.port
	silent := c.silent()
	var f canbus.Frame
	if kind != idle {
		f = c.tx[mb].frame()
		if c.mcr&regs.TTCM.Mask() != 0 && c.tx[mb].dtr&regs.TGT.Mask() != 0 && f.Len == 8 {
			binary.LittleEndian.PutUint16(f.Data[6:8], c.timer)
		}
	}
	c.mu.Unlock()

	acked := false
	switch kind {
	case looped:
		if !silent && port != nil {
			port.Transmit(f)
		}
	case onBus:
		if port != nil {
			acked = port.Transmit(f)
		}
	}

	c.mu.Lock()
	c.finish(mb, kind, fail, f, acked)
	c.mu.Unlock()
	c.raise()
	return kind != idle
}

func (c *Controller) begin() (int, attempt, Failure) {
	if !c.running() {
		return 0, idle, 0
	}
	if c.busOff() {
		if c.mcr&regs.ABOM.Mask() != 0 {
			prev := c.esr()
			c.tec, c.rec = 0, 0
			c.errorsChanged(prev)
		}
		return 0, idle, 0
	}
	order := c.order()
	if len(order) == 0 {
		return 0, idle, 0
	}
	mb := order[0]
	c.tx[mb].busy = true
	switch {
	case c.fail != 0:
		fail := c.fail
		c.fail = 0
		return mb, injected, fail
	case c.loopback():
		return mb, looped, 0
	case c.silent():
		c.tx[mb].busy = false
		return 0, idle, 0
	}
	return mb, onBus, 0
}

func (c *Controller) finish(mb int, kind attempt, fail Failure, f canbus.Frame, acked bool) {
	if kind == idle {
		return
	}
	m := &c.tx[mb]
	m.busy = false
	prev := c.esr()
	oneShot := c.mcr&regs.NART.Mask() != 0

	switch {
	case kind == injected && fail == ArbitrationLost:
		c.failed(mb, regs.ALST(mb), oneShot)
	case kind == injected:
		c.tec += 8
		c.lec = 5 // bit dominant
		c.failed(mb, regs.TERR(mb), oneShot)
	case kind == looped:
		c.succeeded(mb)
		c.receive(f)
	case acked:
		if c.tec > 0 {
			c.tec--
		}
		c.succeeded(mb)
	default:
		c.tec += 8
		c.lec = 3 // acknowledgment
		c.failed(mb, regs.TERR(mb), oneShot)
	}
	c.errorsChanged(prev)
}

func (c *Controller) succeeded(mb int) {
	m := &c.tx[mb]
	m.pending = false
	m.dtr = regs.TIME.Put(m.dtr, uint32(c.timer))
	c.tsrFlags &^= regs.ALST(mb).Mask() | regs.TERR(mb).Mask()
	c.tsrFlags |= regs.RQCP(mb).Mask() | regs.TXOK(mb).Mask()
}

// failed records a failed attempt. Unless retransmission is
// disabled, the mailbox stays pending and is tried again.
func (c *Controller) failed(mb int, flag regs.Field, oneShot bool) {
	c.tsrFlags &^= regs.TXOK(mb).Mask()
	c.tsrFlags |= flag.Mask()
	if oneShot {
		c.tx[mb].pending = false
		c.tsrFlags |= regs.RQCP(mb).Mask()
	}
}

// Flush steps the controller until no transmission is attempted
// any more, or limit steps have been made. It returns the number
// of attempts.
func (c *Controller) Flush(limit int) int {
	n := 0
	for n < limit && c.Step() {
		n++
	}
	return n
}

// Deliver receives a frame from the bus. Frames are ignored while
// the controller is not running, and in loopback modes.
func (c *Controller) Deliver(f canbus.Frame) {
	c.mu.Lock()
	if !c.running() || c.loopback() {
		c.mu.Unlock()
		return
	}
	if c.rec > 0 {
		prev := c.esr()
		c.rec--
		c.errorsChanged(prev)
	}
	c.receive(f)
	c.mu.Unlock()
	c.raise()
}

// receive runs f through the acceptance filters and stores it into
// the selected FIFO.
func (c *Controller) receive(f canbus.Frame) {
	if c.filterInit() {
		return
	}
	n, fmi, ok := c.match(&f)
	if !ok {
		return
	}
	var e rxEntry
	if f.Extended {
		e.ir = regs.STID.Val(f.ID>>18) | regs.EXID.Val(f.ID) | regs.IDE.Mask()
	} else {
		e.ir = regs.STID.Val(f.ID)
	}
	e.ir |= regs.RTR.Val(b2u(f.RTR))
	e.dtr = regs.DLC.Val(uint32(f.Len)) | regs.FMI.Val(uint32(fmi)) | regs.TIME.Val(uint32(c.timer))
	e.dlr = binary.LittleEndian.Uint32(f.Data[0:4])
	e.dhr = binary.LittleEndian.Uint32(f.Data[4:8])

	q := &c.rx[n]
	switch {
	case len(q.q) < regs.FIFODepth:
		q.q = append(q.q, e)
		q.full = len(q.q) == regs.FIFODepth
	case c.mcr&regs.RFLM.Mask() != 0:
		q.ovr = true
	default:
		q.q[len(q.q)-1] = e
		q.ovr = true
	}
}

func (c *Controller) Timestamp() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer
}

// lines returns the interrupt lines whose condition holds.
func (c *Controller) lines() []nvic.IRQ {
	ier := c.mem.Load(regs.IER)
	var irqs []nvic.IRQ
	var rqcp uint32
	for mb := range c.tx {
		rqcp |= regs.RQCP(mb).Mask()
	}
	if ier&regs.TMEIE.Mask() != 0 && c.tsrFlags&rqcp != 0 {
		irqs = append(irqs, nvic.CAN1TX)
	}
	for n, line := range []nvic.IRQ{nvic.CAN1RX0, nvic.CAN1RX1} {
		f := &c.rx[n]
		if ier&regs.FMPIE(n).Mask() != 0 && len(f.q) > 0 ||
			ier&regs.FFIE(n).Mask() != 0 && f.full ||
			ier&regs.FOVIE(n).Mask() != 0 && f.ovr {
			irqs = append(irqs, line)
		}
	}
	if ier&regs.ERRIE.Mask() != 0 && c.msr&regs.ERRI.Mask() != 0 {
		irqs = append(irqs, nvic.CAN1SCE)
	}
	return irqs
}

type fingerprint struct {
	tsr, rfr0, rfr1, msr, esr uint32
}

func (c *Controller) fingerprint() fingerprint {
	return fingerprint{c.tsr(), c.rfr(0), c.rfr(1), c.msr, c.esr()}
}

// raise signals the active interrupt lines until they become
// inactive, or the handlers stop making progress.
func (c *Controller) raise() {
	c.mu.Lock()
	if c.raising || c.irq == nil {
		c.mu.Unlock()
		return
	}
	c.raising = true
	var prev fingerprint
	for round := 0; round < maxRounds; round++ {
		irqs := c.lines()
		fp := c.fingerprint()
		if len(irqs) == 0 || round > 0 && fp == prev {
			break
		}
		prev = fp
		hook := c.irq
		c.mu.Unlock()
		for _, irq := range irqs {
			hook(irq)
		}
		c.mu.Lock()
	}
	c.raising = false
	c.mu.Unlock()
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
