package bxcan

import (
	"fmt"
	"time"
)

// Mode selects how the controller is connected to the bus.
type Mode uint8

const (
	ModeNormal Mode = iota
	// Transmitted frames are received by the controller itself, and
	// are also driven onto the bus; frames on the bus are ignored.
	ModeLoopback
	// The controller receives but only sends recessive bits, so it
	// neither acknowledges nor transmits.
	ModeSilent
	// Loopback without any bus activity, for self tests.
	ModeSilentLoopback
	numModes
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeLoopback:
		return "loopback"
	case ModeSilent:
		return "silent"
	case ModeSilentLoopback:
		return "silent-loopback"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) silent() bool   { return m == ModeSilent || m == ModeSilentLoopback }
func (m Mode) loopback() bool { return m == ModeLoopback || m == ModeSilentLoopback }

// ParseMode returns the mode named s, as printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := Mode(0); m < numModes; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("bxcan: unknown mode %q", s)
}

type BaudRate uint8

const (
	Baud50k BaudRate = iota
	Baud100k
	Baud125k
	Baud250k
	Baud500k
	Baud800k
	Baud1M
	numBaudRates
)

var baudRates = [numBaudRates]int{50000, 100000, 125000, 250000, 500000, 800000, 1000000}

// BitsPerSecond returns the nominal bit rate.
func (b BaudRate) BitsPerSecond() int {
	if b < numBaudRates {
		return baudRates[b]
	}
	return 0
}

func (b BaudRate) String() string {
	bps := b.BitsPerSecond()
	switch {
	case bps == 0:
		return fmt.Sprintf("BaudRate(%d)", uint8(b))
	case bps%1000000 == 0:
		return fmt.Sprintf("%dM", bps/1000000)
	}
	return fmt.Sprintf("%dk", bps/1000)
}

// ParseBaudRate accepts the nominal rate in bits per second, or
// one of the short forms printed by BaudRate.String.
func ParseBaudRate(s string) (BaudRate, error) {
	for b := BaudRate(0); b < numBaudRates; b++ {
		if s == b.String() || s == fmt.Sprint(b.BitsPerSecond()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("bxcan: unsupported baud rate %q", s)
}

// BitTiming holds the length of the two bit segments in time
// quanta, and the prescaler dividing the peripheral clock into
// time quanta. All values are one-based.
type BitTiming struct {
	TS1 uint32
	TS2 uint32
	BRP uint32
}

// Bit timings for an 8 MHz peripheral clock, sampling at about 87%.
var timings = [numBaudRates]BitTiming{
	Baud50k:  {13, 2, 10},
	Baud100k: {13, 2, 5},
	Baud125k: {13, 2, 4},
	Baud250k: {13, 2, 2},
	Baud500k: {13, 2, 1},
	Baud800k: {8, 1, 1},
	Baud1M:   {6, 1, 1},
}

// Timing returns the table entry for b.
func Timing(b BaudRate) (BitTiming, error) {
	if b >= numBaudRates {
		return BitTiming{}, &RangeError{What: "baud rate", Value: int(b), Max: int(numBaudRates) - 1}
	}
	return timings[b], nil
}

type Config struct {
	Mode     Mode
	BaudRate BaudRate

	TimeTriggered      bool // time triggered communication: transmit time stamps
	AutoBusOff         bool // leave bus-off state automatically
	AutoWakeUp         bool // wake up from sleep on bus activity
	AutoRetransmission bool // retry until a frame has been transmitted successfully
	ReceiveFIFOLocked  bool // a full FIFO discards new frames instead of overwriting the last one
	TxPriorityByID     bool // transmit pending mailboxes by identifier rather than request order

	// AckTimeout bounds each wait for the controller to acknowledge
	// a state change. Zero waits forever.
	AckTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:               ModeNormal,
		BaudRate:           Baud500k,
		AutoRetransmission: true,
		TxPriorityByID:     true,
	}
}

func (c *Config) Validate() error {
	if c.Mode >= numModes {
		return &RangeError{What: "mode", Value: int(c.Mode), Max: int(numModes) - 1}
	}
	if c.BaudRate >= numBaudRates {
		return &RangeError{What: "baud rate", Value: int(c.BaudRate), Max: int(numBaudRates) - 1}
	}
	if c.AckTimeout < 0 {
		return fmt.Errorf("bxcan: negative ack timeout %v", c.AckTimeout)
	}
	return nil
}
