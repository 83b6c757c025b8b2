package bxcan

import (
	"encoding/binary"

	"github.com/knieriem/bxcan/regs"
)

// FIFO selects one of the two receive FIFOs.
type FIFO uint8

const (
	FIFO0 FIFO = iota
	FIFO1
)

// RxFrame describes a frame taken from a receive FIFO.
type RxFrame struct {
	ID       uint32
	Extended bool
	Remote   bool
	DLC      uint8

	// FilterMatchIndex numbers the filter that accepted the frame,
	// counting the filters assigned to the FIFO in bank order.
	FilterMatchIndex uint8

	// TimeStamp is the value of the controller's bit time counter
	// at the start of frame.
	TimeStamp uint16
}

// Receive reads the oldest frame of fifo into f and data, and
// releases it from the FIFO. All eight bytes of data are
// overwritten; bytes beyond the frame's length are zero. Receive
// does not wait: if the FIFO is empty, ErrFIFOEmpty is returned.
func (d *Dev) Receive(fifo FIFO, f *RxFrame, data *[8]byte) error {
	if err := checkRange("fifo", int(fifo), regs.NumFIFOs-1); err != nil {
		return err
	}
	n := int(fifo)
	if d.reg(regs.RFR(n)).Get(regs.FMP) == 0 {
		return ErrFIFOEmpty
	}
	*data = [8]byte{}

	ir := d.r.Load(regs.RxFIFO(n, regs.IR))
	f.Extended = ir&regs.IDE.Mask() != 0
	if f.Extended {
		f.ID = regs.STID.Get(ir)<<18 | regs.EXID.Get(ir)
	} else {
		f.ID = regs.STID.Get(ir)
	}
	f.Remote = ir&regs.RTR.Mask() != 0

	dtr := d.r.Load(regs.RxFIFO(n, regs.DTR))
	f.DLC = uint8(regs.DLC.Get(dtr))
	f.FilterMatchIndex = uint8(regs.FMI.Get(dtr))
	f.TimeStamp = uint16(regs.TIME.Get(dtr))

	if !f.Remote {
		var buf [8]byte
		binary.LittleEndian.PutUint32(buf[0:4], d.r.Load(regs.RxFIFO(n, regs.DLR)))
		binary.LittleEndian.PutUint32(buf[4:8], d.r.Load(regs.RxFIFO(n, regs.DHR)))
		l := int(f.DLC)
		if l > 8 {
			l = 8
		}
		copy(data[:l], buf[:l])
	}

	// Release the output mailbox.
	d.r.Store(regs.RFR(n), regs.RFOM.Mask())
	return nil
}

// PendingMessages returns the number of frames waiting in fifo.
func (d *Dev) PendingMessages(fifo FIFO) (int, error) {
	if err := checkRange("fifo", int(fifo), regs.NumFIFOs-1); err != nil {
		return 0, err
	}
	return int(d.reg(regs.RFR(int(fifo))).Get(regs.FMP)), nil
}
