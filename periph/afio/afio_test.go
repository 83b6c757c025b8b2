package afio

import (
	"errors"
	"testing"

	"github.com/knieriem/bxcan/regs"
)

func TestRemap(t *testing.T) {
	tests := []struct {
		sel  Remap
		mapr uint32
	}{
		{SPI1, 1 << 0},
		{I2C1, 1 << 1},
		{USART1, 1 << 2},
		{USART2, 1 << 3},
		{USART3, 3 << 4},
		{TIM1, 3 << 6},
		{TIM2, 3 << 8},
		{TIM3, 3 << 10},
		{TIM4, 1 << 12},
		{CAN, 2 << 13},
	}
	for _, tt := range tests {
		t.Run(tt.sel.String(), func(t *testing.T) {
			m := regs.NewMem(nil)
			a := New(m)
			if err := a.Remap(tt.sel); err != nil {
				t.Fatal(err)
			}
			if v := m.Load(mapr); v != tt.mapr {
				t.Errorf("MAPR = %#x, want %#x", v, tt.mapr)
			}
		})
	}
}

func TestRemapKeepsOthers(t *testing.T) {
	m := regs.NewMem(map[uint32]uint32{mapr: 1<<13 | 1<<0})
	a := New(m)
	if err := a.Remap(CAN); err != nil {
		t.Fatal(err)
	}
	if v, _ := a.Remapped(CAN); v != 0b10 {
		t.Errorf("CAN remap = %#b", v)
	}
	if v, _ := a.Remapped(SPI1); v != 1 {
		t.Error("SPI1 remap lost")
	}
}

func TestUnknown(t *testing.T) {
	a := New(regs.NewMem(nil))
	err := a.Remap(Remap(42))
	if !errors.Is(err, ErrUnknownRemap) {
		t.Fatalf("got %v", err)
	}
	if err.Error() != "afio: unknown remap selector: Remap(42)" {
		t.Error(err)
	}
}
