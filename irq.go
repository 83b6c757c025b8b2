package bxcan

import (
	"fmt"

	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/regs"
)

// ErrorCode is the last error code reported by the controller.
type ErrorCode uint8

const (
	NoError ErrorCode = iota
	StuffError
	FormError
	AckError
	BitRecessiveError
	BitDominantError
	CRCError
	SoftwareError // set by software
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "no error"
	case StuffError:
		return "stuff error"
	case FormError:
		return "form error"
	case AckError:
		return "acknowledgment error"
	case BitRecessiveError:
		return "bit recessive error"
	case BitDominantError:
		return "bit dominant error"
	case CRCError:
		return "CRC error"
	case SoftwareError:
		return "set by software"
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// snapshot holds the registers an interrupt entry point looks at.
type snapshot struct {
	ier  uint32
	tsr  uint32
	rfr  uint32
	esr  uint32
	fifo FIFO
}

func (s *snapshot) enabled(f regs.Field) bool {
	return s.ier&f.Mask() != 0
}

// A rule pairs a condition with the action taken when it is the
// first matching rule of an entry point.
type rule struct {
	name  string
	match func(s *snapshot) bool
	run   func(d *Dev, s *snapshot)
}

// dispatch runs the first rule matching s.
func (d *Dev) dispatch(rules []rule, s *snapshot) (string, bool) {
	for i := range rules {
		r := &rules[i]
		if r.match(s) {
			r.run(d, s)
			return r.name, true
		}
	}
	return "", false
}

var txRules = func() []rule {
	var rules []rule
	for mb := 0; mb < regs.NumMailboxes; mb++ {
		rules = append(rules, rule{
			name: fmt.Sprintf("mailbox %d complete", mb),
			match: func(s *snapshot) bool {
				return s.tsr&regs.RQCP(mb).Mask() != 0
			},
			run: func(d *Dev, s *snapshot) {
				switch mailboxOutcome(s.tsr, mb) {
				case OutcomeSuccess:
					d.notify(txComplete(mb))
				case OutcomeArbitrationLost, OutcomeTransmitError:
					d.notify(txError(mb))
				default:
					d.notify(txAbort(mb))
				}
				// Clearing RQCP also clears TXOK, ALST, TERR and ABRQ.
				d.r.Store(regs.TSR, regs.RQCP(mb).Mask())
			},
		})
	}
	return rules
}()

var rxRules = []rule{
	{
		name: "pending",
		match: func(s *snapshot) bool {
			return s.enabled(regs.FMPIE(int(s.fifo))) && regs.FMP.Get(s.rfr) != 0
		},
		run: func(d *Dev, s *snapshot) {
			d.notify(rxPending(s.fifo))
		},
	},
	{
		name: "full",
		match: func(s *snapshot) bool {
			return s.enabled(regs.FFIE(int(s.fifo))) && s.rfr&regs.FULL.Mask() != 0
		},
		run: func(d *Dev, s *snapshot) {
			d.notify(rxFull(s.fifo))
			d.r.Store(regs.RFR(int(s.fifo)), regs.FULL.Mask())
		},
	},
	{
		name: "overrun",
		match: func(s *snapshot) bool {
			return s.enabled(regs.FOVIE(int(s.fifo))) && s.rfr&regs.FOVR.Mask() != 0
		},
		run: func(d *Dev, s *snapshot) {
			d.notify(rxOverrun(s.fifo))
			d.r.Store(regs.RFR(int(s.fifo)), regs.FOVR.Mask())
		},
	},
}

func errorFlagRule(name string, enable, flag regs.Field, n Notification) rule {
	return rule{
		name: name,
		match: func(s *snapshot) bool {
			return s.enabled(regs.ERRIE) && s.enabled(enable) && s.esr&flag.Mask() != 0
		},
		run: func(d *Dev, s *snapshot) {
			d.notify(n)
			d.reg(regs.ESR).ClearBits(flag.Mask())
		},
	}
}

var sceRules = []rule{
	errorFlagRule("warning", regs.EWGIE, regs.EWGF, ErrorWarning),
	errorFlagRule("passive", regs.EPVIE, regs.EPVF, ErrorPassive),
	errorFlagRule("bus-off", regs.BOFIE, regs.BOFF, BusOff),
	{
		name: "last error code",
		match: func(s *snapshot) bool {
			return s.enabled(regs.ERRIE) && s.enabled(regs.LECIE) && regs.LEC.Get(s.esr) != 0
		},
		run: func(d *Dev, s *snapshot) {
			d.lec.Store(regs.LEC.Get(s.esr))
			d.notify(MultiError)
			d.reg(regs.ESR).Set(regs.LEC, 0)
		},
	},
}

// HandleTx is the entry point of the transmit interrupt. It
// services at most one completed mailbox per call, in mailbox order.
func (d *Dev) HandleTx() {
	s := snapshot{tsr: d.r.Load(regs.TSR)}
	d.dispatch(txRules, &s)
}

// HandleRx0 is the entry point of the FIFO 0 receive interrupt.
func (d *Dev) HandleRx0() {
	d.handleRx(FIFO0)
}

// HandleRx1 is the entry point of the FIFO 1 receive interrupt.
func (d *Dev) HandleRx1() {
	d.handleRx(FIFO1)
}

func (d *Dev) handleRx(fifo FIFO) {
	s := snapshot{
		ier:  d.r.Load(regs.IER),
		rfr:  d.r.Load(regs.RFR(int(fifo))),
		fifo: fifo,
	}
	d.dispatch(rxRules, &s)
}

// HandleSCE is the entry point of the status change and error
// interrupt.
func (d *Dev) HandleSCE() {
	s := snapshot{
		ier: d.r.Load(regs.IER),
		esr: d.r.Load(regs.ESR),
	}
	d.dispatch(sceRules, &s)
	d.r.Store(regs.MSR, regs.ERRI.Mask())
}

// LastErrorCode returns the error code captured by the most recent
// MultiError event.
func (d *Dev) LastErrorCode() ErrorCode {
	return ErrorCode(d.lec.Load())
}

// ErrorCounters returns the transmit and receive error counters.
func (d *Dev) ErrorCounters() (tec, rec uint8) {
	esr := d.reg(regs.ESR).Load()
	return uint8(regs.TEC.Get(esr)), uint8(regs.REC.Get(esr))
}

// ErrorState describes the fault confinement state of the controller.
type ErrorState struct {
	Warning bool
	Passive bool
	BusOff  bool
	TEC     uint8
	REC     uint8
	LEC     ErrorCode // current value of the error code register field
}

func (d *Dev) ErrorState() ErrorState {
	esr := d.reg(regs.ESR).Load()
	return ErrorState{
		Warning: esr&regs.EWGF.Mask() != 0,
		Passive: esr&regs.EPVF.Mask() != 0,
		BusOff:  esr&regs.BOFF.Mask() != 0,
		TEC:     uint8(regs.TEC.Get(esr)),
		REC:     uint8(regs.REC.Get(esr)),
		LEC:     ErrorCode(regs.LEC.Get(esr)),
	}
}

// AttachInterrupts installs the four entry points as handlers of
// the controller's interrupt lines, and enables the lines at
// priority prio.
func (d *Dev) AttachInterrupts(ic InterruptController, prio int) error {
	lines := []struct {
		irq nvic.IRQ
		h   func()
	}{
		{nvic.CAN1TX, d.HandleTx},
		{nvic.CAN1RX0, d.HandleRx0},
		{nvic.CAN1RX1, d.HandleRx1},
		{nvic.CAN1SCE, d.HandleSCE},
	}
	for _, l := range lines {
		if err := ic.Handle(l.irq, l.h); err != nil {
			return err
		}
		if err := ic.SetPriority(l.irq, prio); err != nil {
			return err
		}
		if err := ic.Enable(l.irq); err != nil {
			return err
		}
	}
	return nil
}
