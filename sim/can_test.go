package sim

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/periph/nvic"
	"github.com/knieriem/bxcan/regs"
)

// running returns a controller that has left sleep and
// initialization mode, with bit timing programmed and an
// accept-all filter on bank 0.
func running(t *testing.T, btr uint32) *Controller {
	t.Helper()
	c := New()
	c.Store(regs.MCR, regs.INRQ.Mask())
	if c.Load(regs.MSR)&regs.INAK.Mask() == 0 {
		t.Fatal("no init acknowledge")
	}
	c.Store(regs.BTR, btr)
	c.Store(regs.FS1R, 1)
	c.Store(regs.FA1R, 1)
	c.Store(regs.FMR, 0)
	c.Store(regs.MCR, 0)
	if c.Load(regs.MSR) != 0 {
		t.Fatal("controller not running")
	}
	return c
}

func request(c *Controller, mb int, ir uint32) {
	c.Store(regs.TxMailbox(mb, regs.IR), ir|regs.TXRQ.Mask())
}

func TestResetState(t *testing.T) {
	c := New()
	if v := c.Load(regs.MSR); v != regs.SLAK.Mask() {
		t.Errorf("MSR = %#x", v)
	}
	tsr := c.Load(regs.TSR)
	if tsr != regs.TME(0).Mask()|regs.TME(1).Mask()|regs.TME(2).Mask() {
		t.Errorf("TSR = %#x", tsr)
	}
	if c.Load(regs.FMR) != regs.FINIT.Mask() {
		t.Error("filters not in init mode")
	}
	if c.Step() {
		t.Error("sleeping controller transmitted")
	}
}

func TestBTRWriteProtected(t *testing.T) {
	c := running(t, 0x1234)
	c.Store(regs.BTR, 0)
	if c.Load(regs.BTR) != 0x1234 {
		t.Error("BTR written outside initialization mode")
	}
}

func TestCode(t *testing.T) {
	c := running(t, regs.LBKM.Mask()|regs.SILM.Mask())
	request(c, 0, regs.STID.Val(0x300))
	request(c, 1, regs.STID.Val(0x100))
	tsr := c.Load(regs.TSR)
	if regs.CODE.Get(tsr) != 2 {
		t.Errorf("CODE = %d", regs.CODE.Get(tsr))
	}
	if tsr&regs.LOW(0).Mask() == 0 {
		t.Errorf("mailbox 0 not lowest priority: %#x", tsr)
	}
	request(c, 2, regs.STID.Val(0x200))
	tsr = c.Load(regs.TSR)
	if regs.CODE.Get(tsr) != 0 || tsr&(regs.TME(0).Mask()|regs.TME(1).Mask()|regs.TME(2).Mask()) != 0 {
		t.Errorf("TSR = %#x", tsr)
	}

	// mailbox registers are write protected while pending
	c.Store(regs.TxMailbox(1, regs.DLR), 0xFFFF)
	if c.Load(regs.TxMailbox(1, regs.DLR)) != 0 {
		t.Error("pending mailbox modified")
	}
}

func TestArbitration(t *testing.T) {
	std := regs.STID.Val(0x100)
	stdRemote := std | regs.RTR.Mask()
	ext := regs.STID.Val(0x100) | regs.IDE.Mask()
	if !(arbitration(std) < arbitration(stdRemote) && arbitration(stdRemote) < arbitration(ext)) {
		t.Error("standard frames must win over extended frames with the same base id")
	}
	if arbitration(regs.STID.Val(0x0FF)|regs.IDE.Mask()|regs.EXID.Val(0x3FFFF)) > arbitration(std) {
		t.Error("lower base id must win")
	}
}

func TestFIFOFlags(t *testing.T) {
	c := running(t, 0)
	for id := uint32(1); id <= 3; id++ {
		c.Deliver(canbus.Frame{ID: id})
	}
	rfr := c.Load(regs.RF0R)
	if regs.FMP.Get(rfr) != 3 || rfr&regs.FULL.Mask() == 0 || rfr&regs.FOVR.Mask() != 0 {
		t.Errorf("RF0R = %#x", rfr)
	}
	c.Deliver(canbus.Frame{ID: 4})
	if c.Load(regs.RF0R)&regs.FOVR.Mask() == 0 {
		t.Error("no overrun")
	}
	c.Store(regs.RF0R, regs.FULL.Mask()|regs.FOVR.Mask())
	if rfr := c.Load(regs.RF0R); rfr != regs.FMP.Val(3) {
		t.Errorf("flags not cleared: %#x", rfr)
	}
	c.Store(regs.RF0R, regs.RFOM.Mask())
	if id := regs.STID.Get(c.Load(regs.RxFIFO(0, regs.IR))); id != 2 {
		t.Errorf("front frame %#x", id)
	}
}

func TestFilterInitBlocksReception(t *testing.T) {
	c := running(t, 0)
	c.Store(regs.FMR, regs.FINIT.Mask())
	c.Deliver(canbus.Frame{ID: 1})
	if regs.FMP.Get(c.Load(regs.RF0R)) != 0 {
		t.Error("frame received during filter initialization")
	}
}

func TestInterruptRounds(t *testing.T) {
	c := running(t, 0)
	c.Store(regs.IER, regs.FMPIE0.Mask())
	var raised int
	c.OnIRQ(func(irq nvic.IRQ) {
		if irq != nvic.CAN1RX0 {
			t.Errorf("unexpected %v", irq)
		}
		raised++
		// release one frame per interrupt
		c.Store(regs.RF0R, regs.RFOM.Mask())
	})
	c.Store(regs.FMR, regs.FINIT.Mask())
	for id := uint32(1); id <= 3; id++ {
		c.mu.Lock()
		c.rx[0].q = append(c.rx[0].q, rxEntry{ir: regs.STID.Val(id)})
		c.mu.Unlock()
	}
	c.Store(regs.IER, regs.FMPIE0.Mask())
	if raised != 3 {
		t.Errorf("raised %d times, want 3", raised)
	}

	// a handler making no progress is not called forever
	raised = 0
	c.OnIRQ(func(nvic.IRQ) { raised++ })
	c.Store(regs.FMR, 0)
	c.Deliver(canbus.Frame{ID: 9})
	if raised != 1 {
		t.Errorf("raised %d times without progress", raised)
	}
}

func TestHexRoundTrip(t *testing.T) {
	c := running(t, 0x001C0003)
	c.Store(regs.IER, regs.FMPIE0.Mask())
	c.Store(regs.FMR, regs.FINIT.Mask())
	c.Store(regs.FilterReg(3, 1), 0xCAFE0000)

	var buf bytes.Buffer
	if err := c.DumpHex(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), ":00000001FF") {
		t.Fatalf("no end of file record:\n%s", buf.String())
	}

	d := New()
	if err := d.LoadHex(&buf); err != nil {
		t.Fatal(err)
	}
	for _, off := range []uint32{regs.BTR, regs.IER, regs.FMR, regs.FS1R, regs.FA1R, regs.FilterReg(3, 1)} {
		if got, want := d.Load(off), c.Load(off); got != want {
			t.Errorf("%#x: %#x, want %#x", off, got, want)
		}
	}
	if d.Load(regs.MSR) != regs.SLAK.Mask() {
		t.Error("status restored from snapshot")
	}
}

func TestNVICModel(t *testing.T) {
	n := NewNVIC()
	n.Store(nvic.ISER, 1<<19|1<<20)
	n.Store(nvic.ICER, 1<<19)
	if v := n.Load(nvic.ISER); v != 1<<20 {
		t.Errorf("ISER = %#x", v)
	}
	if n.Load(nvic.ICER) != n.Load(nvic.ISER) {
		t.Error("ICER does not mirror ISER")
	}
	n.Store(nvic.ISPR+8, 1<<3)
	if n.Load(nvic.ICPR+8) != 1<<3 {
		t.Error("pending bit of irq 67")
	}
	n.Store(nvic.IPR+20, 0xFFFFFFFF)
	if n.Load(nvic.IPR+20) != 0xF0F0F0F0 {
		t.Error("priority bits")
	}
}
