package bxcan

import (
	"github.com/knieriem/bxcan/periph/afio"
	"github.com/knieriem/bxcan/periph/gpio"
	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/periph/rcc"
	"github.com/knieriem/bxcan/regs"
)

type ClockGate interface {
	Enable(bus rcc.Bus, bit uint) error
}

type PinRemapper interface {
	Remap(sel afio.Remap) error
}

type PinConfigurer interface {
	SetMode(port gpio.Port, pin uint, mode gpio.Mode) error
}

// Board bundles the collaborators Init uses to route clock and
// pins to the controller. Nil members are skipped, for setups
// where clocks and pins have been configured elsewhere.
type Board struct {
	Clocks   ClockGate
	Remapper PinRemapper
	Pins     PinConfigurer

	// Wait replaces the default acknowledge polling if Config.AckTimeout is zero.
	Wait WaitFunc

	// Notifications is the dispatch table of the controller;
	// NewDevice creates an empty one if nil.
	Notifications *Table
}

// The controller's pins after remapping.
const (
	RxPort = gpio.PortB
	RxPin  = 8
	TxPort = gpio.PortB
	TxPin  = 9
)

// MMIOBoard returns the collaborators at their physical addresses.
func MMIOBoard() Board {
	return Board{
		Clocks:   rcc.MMIO(),
		Remapper: afio.MMIO(),
		Pins:     gpio.MMIO(),
	}
}

// MMIO returns the controller at its physical address, using MMIOBoard.
func MMIO() *Dev {
	return NewDevice(regs.MMIO(regs.CANBase), MMIOBoard())
}

func (b *Board) route() error {
	if b.Clocks != nil {
		if err := b.Clocks.Enable(rcc.APB2, rcc.IOPB); err != nil {
			return err
		}
		if err := b.Clocks.Enable(rcc.APB2, rcc.AFIO); err != nil {
			return err
		}
		if err := b.Clocks.Enable(rcc.APB1, rcc.CAN1); err != nil {
			return err
		}
	}
	if b.Remapper != nil {
		if err := b.Remapper.Remap(afio.CAN); err != nil {
			return err
		}
	}
	if b.Pins != nil {
		if err := b.Pins.SetMode(RxPort, RxPin, gpio.InputFloating); err != nil {
			return err
		}
		if err := b.Pins.SetMode(TxPort, TxPin, gpio.AltPushPull2MHz); err != nil {
			return err
		}
	}
	return nil
}

// InterruptController is the part of the NVIC the driver uses to
// route its four interrupt lines.
type InterruptController interface {
	Handle(irq nvic.IRQ, h func()) error
	SetPriority(irq nvic.IRQ, prio int) error
	Enable(irq nvic.IRQ) error
}
