package bxcan

import (
	"errors"
	"fmt"
)

var (
	ErrNoMsg           = errors.New("no message available")
	ErrNoMailbox       = errors.New("no empty transmit mailbox")
	ErrFIFOEmpty       = errors.New("receive fifo empty")
	ErrFilterNotInit   = errors.New("filter banks not in initialization mode")
	ErrNotInitializing = errors.New("controller not in initialization mode")
	ErrAckTimeout      = errors.New("timeout waiting for hardware acknowledge")
)

// RangeError reports an argument outside the range the hardware
// provides, like a filter bank index above 13.
type RangeError struct {
	What  string
	Value int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("bxcan: %s %d out of range 0..%d", e.What, e.Value, e.Max)
}

func checkRange(what string, v, max int) error {
	if v < 0 || v > max {
		return &RangeError{What: what, Value: v, Max: max}
	}
	return nil
}
