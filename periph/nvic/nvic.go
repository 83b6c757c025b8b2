// Package nvic controls the nested vectored interrupt controller:
// enabling lines, priorities, and delivery of raised lines to
// registered handlers.
package nvic

import (
	"fmt"
	"sync"

	"github.com/knieriem/bxcan/regs"
)

// Base is the physical address of the ISER0 register.
const Base = 0xE000E100

// Offsets relative to Base. The enable, pending and active
// registers hold one bit per line, 32 lines per word; IPR holds
// one byte per line.
const (
	ISER uint32 = 0x000
	ICER uint32 = 0x080
	ISPR uint32 = 0x100
	ICPR uint32 = 0x180
	IABR uint32 = 0x200
	IPR  uint32 = 0x300
)

// Implemented priority bits; they occupy the upper nibble of
// each IPR byte.
const (
	PrioBits    = 4
	MaxPriority = 1<<PrioBits - 1
)

// IRQ is an external interrupt line number.
type IRQ uint8

const (
	CAN1TX  IRQ = 19
	CAN1RX0 IRQ = 20
	CAN1RX1 IRQ = 21
	CAN1SCE IRQ = 22

	NumIRQ = 68
)

func (irq IRQ) String() string {
	switch irq {
	case CAN1TX:
		return "CAN1_TX"
	case CAN1RX0:
		return "CAN1_RX0"
	case CAN1RX1:
		return "CAN1_RX1"
	case CAN1SCE:
		return "CAN1_SCE"
	}
	return fmt.Sprintf("IRQ%d", uint8(irq))
}

func (irq IRQ) word() uint32 { return uint32(irq/32) * 4 }
func (irq IRQ) bit() uint32  { return 1 << (irq % 32) }

type RangeError struct {
	IRQ      IRQ
	Priority int
}

func (e *RangeError) Error() string {
	if e.IRQ >= NumIRQ {
		return fmt.Sprintf("nvic: no interrupt line %d", uint8(e.IRQ))
	}
	return fmt.Sprintf("nvic: priority %d of %v out of range 0..%d", e.Priority, e.IRQ, MaxPriority)
}

// NVIC keeps a vector table of handlers next to the register
// block. A line raised while it is disabled, or while its handler
// runs, is latched as pending and delivered later.
type NVIC struct {
	r regs.Bus

	mu       sync.Mutex
	handlers [NumIRQ]func()
	active   [NumIRQ]bool
}

func New(r regs.Bus) *NVIC {
	return &NVIC{r: r}
}

func MMIO() *NVIC {
	return New(regs.MMIO(Base))
}

func check(irq IRQ) error {
	if irq >= NumIRQ {
		return &RangeError{IRQ: irq}
	}
	return nil
}

// Handle installs h as the handler of irq. A nil h removes the
// handler; raised lines without handler are dropped.
func (c *NVIC) Handle(irq IRQ, h func()) error {
	if err := check(irq); err != nil {
		return err
	}
	c.mu.Lock()
	c.handlers[irq] = h
	c.mu.Unlock()
	return nil
}

// Enable unmasks irq. A pending line is delivered before Enable returns.
func (c *NVIC) Enable(irq IRQ) error {
	if err := check(irq); err != nil {
		return err
	}
	c.mu.Lock()
	c.r.Store(ISER+irq.word(), irq.bit())
	if c.pending(irq) && !c.active[irq] {
		c.r.Store(ICPR+irq.word(), irq.bit())
		c.deliver(irq)
	}
	c.mu.Unlock()
	return nil
}

func (c *NVIC) Disable(irq IRQ) error {
	if err := check(irq); err != nil {
		return err
	}
	c.r.Store(ICER+irq.word(), irq.bit())
	return nil
}

func (c *NVIC) Enabled(irq IRQ) bool {
	if check(irq) != nil {
		return false
	}
	return c.r.Load(ISER+irq.word())&irq.bit() != 0
}

// Pending reports whether irq has been raised but not delivered yet.
func (c *NVIC) Pending(irq IRQ) bool {
	if check(irq) != nil {
		return false
	}
	return c.pending(irq)
}

func (c *NVIC) pending(irq IRQ) bool {
	return c.r.Load(ISPR+irq.word())&irq.bit() != 0
}

// SetPriority sets the priority of irq; 0 is the most urgent.
func (c *NVIC) SetPriority(irq IRQ, prio int) error {
	if err := check(irq); err != nil {
		return err
	}
	if prio < 0 || prio > MaxPriority {
		return &RangeError{IRQ: irq, Priority: prio}
	}
	f := regs.Field{Shift: uint8(irq%4)*8 + 8 - PrioBits, Width: PrioBits}
	regs.At(c.r, IPR+uint32(irq)&^3).Set(f, uint32(prio))
	return nil
}

func (c *NVIC) Priority(irq IRQ) (int, error) {
	if err := check(irq); err != nil {
		return 0, err
	}
	f := regs.Field{Shift: uint8(irq%4)*8 + 8 - PrioBits, Width: PrioBits}
	return int(regs.At(c.r, IPR+uint32(irq)&^3).Get(f)), nil
}

// Raise signals irq. If the line is enabled and its handler is not
// running, the handler is called synchronously; otherwise the line
// becomes pending. Requests arriving while the handler runs are
// served once it returns.
func (c *NVIC) Raise(irq IRQ) error {
	if err := check(irq); err != nil {
		return err
	}
	c.mu.Lock()
	if c.active[irq] || c.r.Load(ISER+irq.word())&irq.bit() == 0 {
		c.r.Store(ISPR+irq.word(), irq.bit())
		c.mu.Unlock()
		return nil
	}
	c.deliver(irq)
	c.mu.Unlock()
	return nil
}

// deliver runs the handler of irq with c.mu released, repeating
// while the line was raised again meanwhile. c.mu must be held.
func (c *NVIC) deliver(irq IRQ) {
	c.active[irq] = true
	for {
		h := c.handlers[irq]
		c.mu.Unlock()
		if h != nil {
			h()
		}
		c.mu.Lock()
		if !c.pending(irq) || !c.Enabled(irq) {
			break
		}
		c.r.Store(ICPR+irq.word(), irq.bit())
	}
	c.active[irq] = false
}
