// Package rcc gates the bus clocks of on-chip peripherals.
package rcc

import (
	"fmt"

	"github.com/knieriem/bxcan/regs"
)

// Base is the physical address of the reset and clock controller.
const Base = 0x40021000

const (
	ahbenr  uint32 = 0x14
	apb2enr uint32 = 0x18
	apb1enr uint32 = 0x1C
)

// Bus identifies the peripheral bus whose enable register
// holds a peripheral's clock gate.
type Bus uint8

const (
	AHB Bus = iota
	APB1
	APB2
)

func (b Bus) String() string {
	switch b {
	case AHB:
		return "AHB"
	case APB1:
		return "APB1"
	case APB2:
		return "APB2"
	}
	return fmt.Sprintf("Bus(%d)", uint8(b))
}

// Enable bit positions.
const (
	// AHB
	DMA1  = 0
	DMA2  = 1
	SRAM  = 2
	FLITF = 4
	CRC   = 6
	FSMC  = 8
	SDIO  = 10

	// APB1
	TIM2  = 0
	TIM3  = 1
	TIM4  = 2
	TIM5  = 3
	TIM6  = 4
	TIM7  = 5
	TIM12 = 6
	TIM13 = 7
	TIM14 = 8
	WWDG  = 11
	SPI2  = 14
	SPI3  = 15
	UART2 = 17
	UART3 = 18
	UART4 = 19
	UART5 = 20
	I2C1  = 21
	I2C2  = 22
	USB   = 23
	CAN1  = 25
	BKP   = 27
	PWR   = 28
	DAC   = 29

	// APB2
	AFIO   = 0
	IOPA   = 2
	IOPB   = 3
	IOPC   = 4
	IOPD   = 5
	IOPE   = 6
	ADC1   = 9
	ADC2   = 10
	TIM1   = 11
	SPI1   = 12
	TIM8   = 13
	USART1 = 14
	ADC3   = 15
	TIM9   = 19
	TIM10  = 20
	TIM11  = 21
)

// RangeError reports a bus or bit outside the enable registers.
type RangeError struct {
	Bus Bus
	Bit uint
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rcc: no clock gate %d on %v", e.Bit, e.Bus)
}

type RCC struct {
	r regs.Bus
}

func New(r regs.Bus) *RCC {
	return &RCC{r: r}
}

// MMIO returns the controller at its physical address.
func MMIO() *RCC {
	return New(regs.MMIO(Base))
}

func (c *RCC) enr(bus Bus, bit uint) (regs.Reg, error) {
	var off uint32
	switch bus {
	case AHB:
		off = ahbenr
	case APB1:
		off = apb1enr
	case APB2:
		off = apb2enr
	default:
		return regs.Reg{}, &RangeError{Bus: bus, Bit: bit}
	}
	if bit > 31 {
		return regs.Reg{}, &RangeError{Bus: bus, Bit: bit}
	}
	return regs.At(c.r, off), nil
}

// Enable turns on the clock of the peripheral at bit of bus.
// Enabling an already running clock has no effect.
func (c *RCC) Enable(bus Bus, bit uint) error {
	r, err := c.enr(bus, bit)
	if err != nil {
		return err
	}
	r.SetBits(1 << bit)
	return nil
}

// Disable gates the clock of the peripheral at bit of bus.
func (c *RCC) Disable(bus Bus, bit uint) error {
	r, err := c.enr(bus, bit)
	if err != nil {
		return err
	}
	r.ClearBits(1 << bit)
	return nil
}

// Enabled reports whether the clock at bit of bus is running.
func (c *RCC) Enabled(bus Bus, bit uint) bool {
	r, err := c.enr(bus, bit)
	if err != nil {
		return false
	}
	return r.Load()&(1<<bit) != 0
}
