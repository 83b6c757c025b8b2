package sim

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/knieriem/bxcan/regs"
)

// Register blocks included in snapshots, relative to regs.CANBase.
var snapshotBlocks = []struct {
	off, size uint32
}{
	{regs.MCR, regs.BTR + 4 - regs.MCR},
	{regs.TxMailboxBase, regs.RxFIFOBase + regs.NumFIFOs*regs.MailboxStride - regs.TxMailboxBase},
	{regs.FMR, regs.FA1R + 4 - regs.FMR},
	{regs.FilterBankBase, regs.NumFilterBanks * 8},
}

// DumpHex writes the register file as Intel HEX records, placed at
// the physical address of the controller.
func (c *Controller) DumpHex(w io.Writer) error {
	mem := gohex.NewMemory()
	c.mu.Lock()
	for _, b := range snapshotBlocks {
		buf := make([]byte, b.size)
		for i := uint32(0); i < b.size; i += 4 {
			binary.LittleEndian.PutUint32(buf[i:], c.load(b.off+i))
		}
		err := mem.AddBinary(regs.CANBase+b.off, buf)
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()
	return mem.DumpIntelHex(w, 16)
}

// configRegs are restored by LoadHex; status registers and
// mailbox contents are left alone.
var configRegs = map[uint32]bool{
	regs.IER:   true,
	regs.BTR:   true,
	regs.FMR:   true,
	regs.FM1R:  true,
	regs.FS1R:  true,
	regs.FFA1R: true,
	regs.FA1R:  true,
}

// LoadHex restores the configuration registers and filter banks
// from a snapshot written by DumpHex.
func (c *Controller) LoadHex(r io.Reader) error {
	mem := gohex.NewMemory()
	err := mem.ParseIntelHex(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seg := range mem.GetDataSegments() {
		if seg.Address < regs.CANBase || len(seg.Data)%4 != 0 {
			return fmt.Errorf("sim: segment at %#x outside register file", seg.Address)
		}
		for i := 0; i < len(seg.Data); i += 4 {
			off := seg.Address - regs.CANBase + uint32(i)
			if !configRegs[off] && (off < regs.FilterBankBase || off >= regs.FilterBankBase+regs.NumFilterBanks*8) {
				continue
			}
			c.mem.Store(off, binary.LittleEndian.Uint32(seg.Data[i:]))
		}
	}
	return nil
}
