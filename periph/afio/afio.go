// Package afio remaps peripheral signals to alternate pins.
package afio

import (
	"errors"
	"fmt"

	"github.com/knieriem/bxcan/regs"
)

// Base is the physical address of the alternate function unit.
const Base = 0x40010000

const mapr uint32 = 0x04

// Remap selects a peripheral whose pins can be moved.
type Remap uint8

const (
	SPI1 Remap = iota
	I2C1
	USART1
	USART2
	USART3
	TIM1
	TIM2
	TIM3
	TIM4
	CAN
	numRemaps
)

var remapNames = [...]string{
	SPI1:   "SPI1",
	I2C1:   "I2C1",
	USART1: "USART1",
	USART2: "USART2",
	USART3: "USART3",
	TIM1:   "TIM1",
	TIM2:   "TIM2",
	TIM3:   "TIM3",
	TIM4:   "TIM4",
	CAN:    "CAN",
}

func (r Remap) String() string {
	if r < numRemaps {
		return remapNames[r]
	}
	return fmt.Sprintf("Remap(%d)", uint8(r))
}

type remapping struct {
	f   regs.Field
	val uint32
}

// MAPR fields and the code written by Remap. Multi-bit fields are
// set to their full remap, except CAN, whose code 0b10 moves
// CAN_RX/CAN_TX to PB8/PB9.
var remaps = [numRemaps]remapping{
	SPI1:   {regs.Bit(0), 1},
	I2C1:   {regs.Bit(1), 1},
	USART1: {regs.Bit(2), 1},
	USART2: {regs.Bit(3), 1},
	USART3: {regs.Field{Shift: 4, Width: 2}, 0b11},
	TIM1:   {regs.Field{Shift: 6, Width: 2}, 0b11},
	TIM2:   {regs.Field{Shift: 8, Width: 2}, 0b11},
	TIM3:   {regs.Field{Shift: 10, Width: 2}, 0b11},
	TIM4:   {regs.Bit(12), 1},
	CAN:    {regs.Field{Shift: 13, Width: 2}, 0b10},
}

// ErrUnknownRemap is returned for a selector without a MAPR field.
var ErrUnknownRemap = errors.New("afio: unknown remap selector")

type AFIO struct {
	r regs.Bus
}

func New(r regs.Bus) *AFIO {
	return &AFIO{r: r}
}

func MMIO() *AFIO {
	return New(regs.MMIO(Base))
}

// Remap moves the pins of the selected peripheral to their
// alternate location.
func (a *AFIO) Remap(sel Remap) error {
	if sel >= numRemaps {
		return fmt.Errorf("%w: %v", ErrUnknownRemap, sel)
	}
	m := remaps[sel]
	regs.At(a.r, mapr).Set(m.f, m.val)
	return nil
}

// Remapped returns the current remap code of the selected peripheral.
func (a *AFIO) Remapped(sel Remap) (uint32, error) {
	if sel >= numRemaps {
		return 0, fmt.Errorf("%w: %v", ErrUnknownRemap, sel)
	}
	return regs.At(a.r, mapr).Get(remaps[sel].f), nil
}
