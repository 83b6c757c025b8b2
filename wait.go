package bxcan

import (
	"runtime"
	"time"
)

// WaitFunc blocks until done reports true. It is used whenever the
// driver requests a state change of the controller and waits for
// the corresponding acknowledge bit.
type WaitFunc func(done func() bool) error

// Spin polls done until it returns true, without any time limit.
func Spin(done func() bool) error {
	for !done() {
		runtime.Gosched()
	}
	return nil
}

// Timeout returns a WaitFunc that gives up with ErrAckTimeout
// after d.
func Timeout(d time.Duration) WaitFunc {
	return func(done func() bool) error {
		deadline := time.Now().Add(d)
		for !done() {
			if time.Now().After(deadline) {
				return ErrAckTimeout
			}
			runtime.Gosched()
		}
		return nil
	}
}
