package bxcan

import (
	"encoding/binary"

	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/regs"
)

// TxFrame describes a frame to be loaded into a transmit mailbox.
type TxFrame struct {
	ID       uint32
	Extended bool
	Remote   bool
	DLC      uint8

	// TransmitTime makes the controller replace the last two data
	// bytes by the time stamp of the start of frame. Only effective
	// with Config.TimeTriggered and DLC 8.
	TransmitTime bool
}

// Transmit loads f and data into an empty mailbox and requests its
// transmission. It returns the mailbox index; the outcome is
// reported by MailboxOutcome or through notifications. If all
// mailboxes are pending, ErrNoMailbox is returned immediately.
func (d *Dev) Transmit(f *TxFrame, data []byte) (int, error) {
	if f.DLC > 8 {
		return 0, &RangeError{What: "data length code", Value: int(f.DLC), Max: 8}
	}
	if len(data) > 8 {
		return 0, &RangeError{What: "data length", Value: len(data), Max: 8}
	}
	if f.Extended {
		if err := checkRange("extended id", int(f.ID), canbus.MaxExtID); err != nil {
			return 0, err
		}
	} else if err := checkRange("standard id", int(f.ID), canbus.MaxStdID); err != nil {
		return 0, err
	}

	tsr := d.reg(regs.TSR).Load()
	mb := int(regs.CODE.Get(tsr))
	if mb >= regs.NumMailboxes || tsr&regs.TME(mb).Mask() == 0 {
		// CODE may point at a pending mailbox; use the first empty one.
		mb = -1
		for i := 0; i < regs.NumMailboxes; i++ {
			if tsr&regs.TME(i).Mask() != 0 {
				mb = i
				break
			}
		}
		if mb < 0 {
			return 0, ErrNoMailbox
		}
	}

	var ir uint32
	if f.Extended {
		ir = regs.STID.Val(f.ID>>18) | regs.EXID.Val(f.ID) | regs.IDE.Mask()
	} else {
		ir = regs.STID.Val(f.ID)
	}
	ir |= regs.RTR.Val(b2u(f.Remote))
	d.r.Store(regs.TxMailbox(mb, regs.IR), ir)

	dtr := d.reg(regs.TxMailbox(mb, regs.DTR))
	v := regs.DLC.Put(dtr.Load(), uint32(f.DLC))
	v = regs.TGT.Put(v, b2u(f.TransmitTime))
	dtr.Store(v)

	var buf [8]byte
	copy(buf[:], data)
	d.r.Store(regs.TxMailbox(mb, regs.DLR), binary.LittleEndian.Uint32(buf[0:4]))
	d.r.Store(regs.TxMailbox(mb, regs.DHR), binary.LittleEndian.Uint32(buf[4:8]))

	// From now on the mailbox belongs to the controller.
	d.reg(regs.TxMailbox(mb, regs.IR)).SetBits(regs.TXRQ.Mask())
	return mb, nil
}

// AbortMailbox requests the controller to abort a pending
// transmission. A frame already being transmitted is not aborted;
// check MailboxOutcome when the mailbox has become complete.
func (d *Dev) AbortMailbox(mb int) error {
	if err := checkRange("mailbox", mb, regs.NumMailboxes-1); err != nil {
		return err
	}
	// Writing zeros to the flag bits of TSR has no effect.
	d.r.Store(regs.TSR, regs.ABRQ(mb).Mask())
	return nil
}

// FreeMailboxes returns the number of empty transmit mailboxes.
func (d *Dev) FreeMailboxes() int {
	tsr := d.reg(regs.TSR).Load()
	n := 0
	for i := 0; i < regs.NumMailboxes; i++ {
		if tsr&regs.TME(i).Mask() != 0 {
			n++
		}
	}
	return n
}

// MailboxComplete reports whether the last request of a mailbox
// has completed, by success, abort or error.
func (d *Dev) MailboxComplete(mb int) (bool, error) {
	if err := checkRange("mailbox", mb, regs.NumMailboxes-1); err != nil {
		return false, err
	}
	return d.reg(regs.TSR).Test(regs.RQCP(mb)), nil
}

// Outcome is the result of the last transmission request of a mailbox.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeArbitrationLost
	OutcomeTransmitError
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeArbitrationLost:
		return "arbitration lost"
	case OutcomeTransmitError:
		return "transmit error"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown outcome"
}

// MailboxOutcome distinguishes the ways a mailbox request can
// complete. The flags it inspects are cleared by HandleTx.
func (d *Dev) MailboxOutcome(mb int) (Outcome, error) {
	if err := checkRange("mailbox", mb, regs.NumMailboxes-1); err != nil {
		return 0, err
	}
	return mailboxOutcome(d.reg(regs.TSR).Load(), mb), nil
}

func mailboxOutcome(tsr uint32, mb int) Outcome {
	switch {
	case tsr&regs.RQCP(mb).Mask() == 0:
		return OutcomePending
	case tsr&regs.TXOK(mb).Mask() != 0:
		return OutcomeSuccess
	case tsr&regs.ALST(mb).Mask() != 0:
		return OutcomeArbitrationLost
	case tsr&regs.TERR(mb).Mask() != 0:
		return OutcomeTransmitError
	}
	return OutcomeAborted
}
