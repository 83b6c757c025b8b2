// Package slcan implements the Lawicel serial line CAN protocol
// spoken by USB-CAN adapters, and connects such an adapter to a
// canbus.Receiver.
package slcan

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.bug.st/serial"

	"github.com/knieriem/bxcan/canbus"
)

// Command characters of frame messages.
const (
	cmdStd       = 't'
	cmdExt       = 'T'
	cmdStdRemote = 'r'
	cmdExtRemote = 'R'
)

const (
	cr   = '\r'
	bell = '\a'
)

// SyntaxError reports a malformed message.
type SyntaxError struct {
	Msg    string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("slcan: %s: %q", e.Reason, e.Msg)
}

// Encode formats f as a frame message, terminated by CR.
func Encode(f canbus.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var cmd byte
	idLen := 3
	switch {
	case f.Extended && f.RTR:
		cmd, idLen = cmdExtRemote, 8
	case f.Extended:
		cmd, idLen = cmdExt, 8
	case f.RTR:
		cmd = cmdStdRemote
	default:
		cmd = cmdStd
	}
	b := make([]byte, 0, 1+idLen+1+2*8+1)
	b = append(b, cmd)
	b = fmt.Appendf(b, "%0*X%d", idLen, f.ID, f.Len)
	if !f.RTR {
		b = fmt.Appendf(b, "%X", f.Payload())
	}
	return append(b, cr), nil
}

// Decode parses a frame message. A trailing CR is optional.
func Decode(msg []byte) (canbus.Frame, error) {
	var f canbus.Frame
	msg = bytes.TrimSuffix(msg, []byte{cr})
	fail := func(reason string) (canbus.Frame, error) {
		return f, &SyntaxError{Msg: string(msg), Reason: reason}
	}
	if len(msg) == 0 {
		return fail("empty message")
	}
	idLen := 3
	switch msg[0] {
	case cmdStd:
	case cmdStdRemote:
		f.RTR = true
	case cmdExt:
		f.Extended = true
		idLen = 8
	case cmdExtRemote:
		f.Extended = true
		f.RTR = true
		idLen = 8
	default:
		return fail("not a frame message")
	}
	if len(msg) < 1+idLen+1 {
		return fail("message too short")
	}
	id, err := strconv.ParseUint(string(msg[1:1+idLen]), 16, 32)
	if err != nil {
		return fail("invalid identifier")
	}
	f.ID = uint32(id)
	dlc := msg[1+idLen]
	if dlc < '0' || dlc > '8' {
		return fail("invalid length")
	}
	f.Len = dlc - '0'
	data := msg[2+idLen:]
	if f.RTR {
		if len(data) != 0 {
			return fail("remote frame with data")
		}
	} else {
		if len(data) != 2*int(f.Len) {
			return fail("data does not match length")
		}
		for i := range int(f.Len) {
			v, err := strconv.ParseUint(string(data[2*i:2*i+2]), 16, 8)
			if err != nil {
				return fail("invalid data")
			}
			f.Data[i] = byte(v)
		}
	}
	if err := f.Validate(); err != nil {
		return fail(err.Error())
	}
	return f, nil
}

// Bit rates selectable by the S command, indexed by its argument.
var bitRates = []int{10000, 20000, 50000, 100000, 125000, 250000, 500000, 800000, 1000000}

// ErrBitRate is returned for bit rates without S command.
var ErrBitRate = errors.New("slcan: unsupported bit rate")

// BitRateCommand returns the S command selecting bps.
func BitRateCommand(bps int) ([]byte, error) {
	for i, r := range bitRates {
		if r == bps {
			return []byte{'S', '0' + byte(i), cr}, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrBitRate, bps)
}

// Conn is the connection to an adapter.
type Conn struct {
	rw io.ReadWriter

	mu sync.Mutex // serializes writes

	// Errors, if set, is called for commands the adapter rejected
	// with BELL, and for messages that could not be decoded.
	Errors func(err error)
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// OpenPort opens a serial device, like /dev/ttyACM0, and returns
// a connection to the adapter behind it. baud is the rate of the
// serial line, not the CAN bit rate.
func OpenPort(name string, baud int) (*Conn, io.Closer, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("slcan: failed to open serial port %s: %w", name, err)
	}
	return NewConn(port), port, nil
}

func (c *Conn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.rw.Write(b)
	return err
}

// Open closes the channel, in case it was left open, selects the
// bit rate, and opens the channel again.
func (c *Conn) Open(bps int) error {
	sel, err := BitRateCommand(bps)
	if err != nil {
		return err
	}
	for _, cmd := range [][]byte{{'C', cr}, sel, {'O', cr}} {
		if err := c.write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the CAN channel of the adapter.
func (c *Conn) Close() error {
	return c.write([]byte{'C', cr})
}

func (c *Conn) WriteFrame(f canbus.Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	return c.write(b)
}

// Transmit sends f to the adapter. Acknowledgement on the bus is
// not reported by the protocol, so a successful write counts as
// acknowledged.
func (c *Conn) Transmit(f canbus.Frame) bool {
	return c.WriteFrame(f) == nil
}

// Serve reads messages from the adapter and delivers received
// frames to r, until reading fails; at the end of input it returns
// io.EOF. Responses other than frame messages are skipped.
func (c *Conn) Serve(r canbus.Receiver) error {
	sc := bufio.NewScanner(c.rw)
	sc.Split(splitMessages)
	for sc.Scan() {
		msg := sc.Bytes()
		switch {
		case len(msg) == 0:
			continue
		case msg[0] == bell:
			c.report(errors.New("slcan: command rejected"))
			continue
		case bytes.IndexByte([]byte{cmdStd, cmdExt, cmdStdRemote, cmdExtRemote}, msg[0]) < 0:
			// z/Z transmit confirmations, version and status replies
			continue
		}
		f, err := Decode(msg)
		if err != nil {
			c.report(err)
			continue
		}
		r.Deliver(f)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (c *Conn) report(err error) {
	if c.Errors != nil {
		c.Errors(err)
	}
}

// splitMessages splits at CR. A BELL is returned as a message of
// its own.
func splitMessages(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		switch b {
		case cr:
			return i + 1, data[:i], nil
		case bell:
			if i > 0 {
				return i, data[:i], nil
			}
			return 1, data[:1], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
