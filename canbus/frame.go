// Package canbus models classical CAN frames as they travel on the
// bus, and an in-process bus connecting several controllers.
package canbus

import (
	"errors"
	"fmt"

	"github.com/knieriem/can"
)

// Frame is a classical CAN 2.0A/2.0B frame.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool
	RTR      bool
	Len      uint8 // 0..8
	Data     [8]byte
}

const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	lim := uint32(MaxStdID)
	if f.Extended {
		lim = MaxExtID
	}
	if f.ID > lim {
		return ErrInvalidID
	}
	return nil
}

// NewFrame returns a data frame carrying data. Identifiers above
// MaxStdID select the extended format.
func NewFrame(id uint32, data []byte) (Frame, error) {
	var f Frame
	if len(data) > 8 {
		return f, ErrInvalidLen
	}
	f.ID = id
	f.Extended = id > MaxStdID
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Payload returns the valid part of Data.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	var id string
	if f.Extended {
		id = fmt.Sprintf("%08X", f.ID)
	} else {
		id = fmt.Sprintf("%03X", f.ID)
	}
	if f.RTR {
		return fmt.Sprintf("%s [%d] remote", id, f.Len)
	}
	return fmt.Sprintf("%s [%d] % X", id, f.Len, f.Payload())
}

// FromMsg converts a message of the knieriem/can package.
func FromMsg(m *can.Msg) (Frame, error) {
	var f Frame
	if m.Len < 0 || m.Len > 8 {
		return f, ErrInvalidLen
	}
	f.ID = m.Id
	f.Extended = m.ExtFrame()
	f.RTR = m.Test(can.RTRMsg)
	f.Len = uint8(m.Len)
	if !f.RTR {
		copy(f.Data[:], m.Data[:m.Len])
	}
	return f, f.Validate()
}

// ToMsg fills m with the contents of f.
func (f *Frame) ToMsg(m *can.Msg) {
	m.Id = f.ID
	m.Flags = 0
	if f.Extended {
		m.Flags |= can.ExtFrame
	}
	if f.RTR {
		m.Flags |= can.RTRMsg
	}
	m.Len = int(f.Len)
	copy(m.Data[:], f.Data[:])
}
