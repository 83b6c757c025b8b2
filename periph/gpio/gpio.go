// Package gpio sets the configuration of general purpose I/O pins.
//
// Each pin is configured by a four bit code in the port's CRL (pins
// 0..7) or CRH (pins 8..15) register: the upper two bits select the
// input kind or output driver, the lower two bits select input
// direction or the output speed.
package gpio

import (
	"fmt"

	"github.com/knieriem/bxcan/regs"
)

// Base is the physical address of port A. Ports follow at
// PortStride intervals.
const (
	Base       = 0x40010800
	PortStride = 0x400
)

const (
	crl uint32 = 0x00
	crh uint32 = 0x04
)

type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	numPorts
)

func (p Port) String() string {
	if p < numPorts {
		return "P" + string(rune('A'+p))
	}
	return fmt.Sprintf("Port(%d)", uint8(p))
}

// Mode is the CNF:MODE code of a pin.
type Mode uint8

const (
	InputAnalog   Mode = 0b0000
	InputFloating Mode = 0b0100
	InputPull     Mode = 0b1000

	OutputPushPull10MHz  Mode = 0b0001
	OutputPushPull2MHz   Mode = 0b0010
	OutputPushPull50MHz  Mode = 0b0011
	OutputOpenDrain10MHz Mode = 0b0101
	OutputOpenDrain2MHz  Mode = 0b0110
	OutputOpenDrain50MHz Mode = 0b0111

	AltPushPull10MHz  Mode = 0b1001
	AltPushPull2MHz   Mode = 0b1010
	AltPushPull50MHz  Mode = 0b1011
	AltOpenDrain10MHz Mode = 0b1101
	AltOpenDrain2MHz  Mode = 0b1110
	AltOpenDrain50MHz Mode = 0b1111
)

// Output reports whether m drives the pin.
func (m Mode) Output() bool {
	return m&0b11 != 0
}

func (m Mode) String() string {
	if m > 0xF {
		return fmt.Sprintf("Mode(%#x)", uint8(m))
	}
	if !m.Output() {
		switch m {
		case InputAnalog:
			return "input analog"
		case InputFloating:
			return "input floating"
		case InputPull:
			return "input pull-up/down"
		}
		return fmt.Sprintf("Mode(%#04b)", uint8(m))
	}
	var kind string
	switch m >> 2 {
	case 0:
		kind = "output push-pull"
	case 1:
		kind = "output open-drain"
	case 2:
		kind = "alternate push-pull"
	case 3:
		kind = "alternate open-drain"
	}
	speed := [...]string{1: "10MHz", 2: "2MHz", 3: "50MHz"}[m&0b11]
	return kind + " " + speed
}

// PinError reports a port or pin that does not exist, or a mode
// code that does not fit into four bits.
type PinError struct {
	Port Port
	Pin  uint
	Mode Mode
}

func (e *PinError) Error() string {
	if e.Mode > 0xF {
		return fmt.Sprintf("gpio: invalid mode %#x", uint8(e.Mode))
	}
	return fmt.Sprintf("gpio: no pin %v%d", e.Port, e.Pin)
}

// GPIO covers the register blocks of all ports; r is addressed
// relative to port A.
type GPIO struct {
	r regs.Bus
}

func New(r regs.Bus) *GPIO {
	return &GPIO{r: r}
}

func MMIO() *GPIO {
	return New(regs.MMIO(Base))
}

func (g *GPIO) cfg(port Port, pin uint) (regs.Reg, regs.Field, error) {
	if port >= numPorts || pin > 15 {
		return regs.Reg{}, regs.Field{}, &PinError{Port: port, Pin: pin}
	}
	off := uint32(port) * PortStride
	if pin < 8 {
		off += crl
	} else {
		off += crh
	}
	f := regs.Field{Shift: uint8(pin%8) * 4, Width: 4}
	return regs.At(g.r, off), f, nil
}

// SetMode configures pin of port. Other pins of the port keep
// their configuration.
func (g *GPIO) SetMode(port Port, pin uint, mode Mode) error {
	if mode > 0xF {
		return &PinError{Port: port, Pin: pin, Mode: mode}
	}
	r, f, err := g.cfg(port, pin)
	if err != nil {
		return err
	}
	r.Set(f, uint32(mode))
	return nil
}

func (g *GPIO) Mode(port Port, pin uint) (Mode, error) {
	r, f, err := g.cfg(port, pin)
	if err != nil {
		return 0, err
	}
	return Mode(r.Get(f)), nil
}
