package regs

// Register map of the CAN controller. Offsets are relative to
// CANBase.
const CANBase = 0x40006400

const (
	MCR  uint32 = 0x000
	MSR  uint32 = 0x004
	TSR  uint32 = 0x008
	RF0R uint32 = 0x00C
	RF1R uint32 = 0x010
	IER  uint32 = 0x014
	ESR  uint32 = 0x018
	BTR  uint32 = 0x01C

	// Transmit mailbox n occupies TxMailboxBase + n*MailboxStride.
	TxMailboxBase uint32 = 0x180
	// Receive FIFO n occupies RxFIFOBase + n*MailboxStride.
	RxFIFOBase    uint32 = 0x1B0
	MailboxStride uint32 = 0x10

	// Word offsets within a mailbox or FIFO window.
	IR  uint32 = 0x0 // TIxR / RIxR
	DTR uint32 = 0x4 // TDTxR / RDTxR
	DLR uint32 = 0x8 // data bytes 0..3
	DHR uint32 = 0xC // data bytes 4..7

	FMR   uint32 = 0x200
	FM1R  uint32 = 0x204
	FS1R  uint32 = 0x20C
	FFA1R uint32 = 0x214
	FA1R  uint32 = 0x21C

	// Filter bank n: FR1 at FilterBankBase + 8*n, FR2 four bytes later.
	FilterBankBase uint32 = 0x240

	NumMailboxes   = 3
	NumFIFOs       = 2
	NumFilterBanks = 14
	FIFODepth      = 3
)

// RFR returns the offset of the status register of receive FIFO n.
func RFR(n int) uint32 {
	return RF0R + uint32(n)*4
}

// TxMailbox returns the offset of register reg of transmit mailbox n.
func TxMailbox(n int, reg uint32) uint32 {
	return TxMailboxBase + uint32(n)*MailboxStride + reg
}

// RxFIFO returns the offset of register reg of the output window
// of receive FIFO n.
func RxFIFO(n int, reg uint32) uint32 {
	return RxFIFOBase + uint32(n)*MailboxStride + reg
}

// FilterReg returns the offset of FR1 (i == 0) or FR2 (i == 1) of
// filter bank n.
func FilterReg(bank int, i int) uint32 {
	return FilterBankBase + uint32(bank)*8 + uint32(i)*4
}

// MCR
var (
	INRQ  = Bit(0)
	SLEEP = Bit(1)
	TXFP  = Bit(2)
	RFLM  = Bit(3)
	NART  = Bit(4)
	AWUM  = Bit(5)
	ABOM  = Bit(6)
	TTCM  = Bit(7)
	RESET = Bit(15)
)

// MSR
var (
	INAK  = Bit(0)
	SLAK  = Bit(1)
	ERRI  = Bit(2)
	WKUI  = Bit(3)
	SLAKI = Bit(4)
)

// TSR per-mailbox flags; use the functions below to select
// a mailbox.
const (
	rqcp = 0
	txok = 1
	alst = 2
	terr = 3
	abrq = 7
)

func RQCP(mb int) Field { return Bit(uint8(8*mb + rqcp)) }
func TXOK(mb int) Field { return Bit(uint8(8*mb + txok)) }
func ALST(mb int) Field { return Bit(uint8(8*mb + alst)) }
func TERR(mb int) Field { return Bit(uint8(8*mb + terr)) }
func ABRQ(mb int) Field { return Bit(uint8(8*mb + abrq)) }
func TME(mb int) Field  { return Bit(uint8(26 + mb)) }
func LOW(mb int) Field  { return Bit(uint8(29 + mb)) }

// CODE holds the number of the next empty mailbox, or of the
// lowest priority pending mailbox if all are pending.
var CODE = Field{Shift: 24, Width: 2}

// RFR
var (
	FMP  = Field{Shift: 0, Width: 2}
	FULL = Bit(3)
	FOVR = Bit(4)
	RFOM = Bit(5)
)

// IER
var (
	TMEIE  = Bit(0)
	FMPIE0 = Bit(1)
	FFIE0  = Bit(2)
	FOVIE0 = Bit(3)
	FMPIE1 = Bit(4)
	FFIE1  = Bit(5)
	FOVIE1 = Bit(6)
	EWGIE  = Bit(8)
	EPVIE  = Bit(9)
	BOFIE  = Bit(10)
	LECIE  = Bit(11)
	ERRIE  = Bit(15)
	WKUIE  = Bit(16)
	SLKIE  = Bit(17)
)

// FMPIE, FFIE and FOVIE select the receive interrupt enables of FIFO n.
func FMPIE(n int) Field { return Bit(uint8(1 + 3*n)) }
func FFIE(n int) Field  { return Bit(uint8(2 + 3*n)) }
func FOVIE(n int) Field { return Bit(uint8(3 + 3*n)) }

// ESR
var (
	EWGF = Bit(0)
	EPVF = Bit(1)
	BOFF = Bit(2)
	LEC  = Field{Shift: 4, Width: 3}
	TEC  = Field{Shift: 16, Width: 8}
	REC  = Field{Shift: 24, Width: 8}
)

// BTR
var (
	BRP  = Field{Shift: 0, Width: 10}
	TS1  = Field{Shift: 16, Width: 4}
	TS2  = Field{Shift: 20, Width: 3}
	SJW  = Field{Shift: 24, Width: 2}
	LBKM = Bit(30)
	SILM = Bit(31)
)

// TIxR / RIxR
var (
	TXRQ = Bit(0)
	RTR  = Bit(1)
	IDE  = Bit(2)
	EXID = Field{Shift: 3, Width: 18}
	STID = Field{Shift: 21, Width: 11}
)

// TDTxR / RDTxR
var (
	DLC  = Field{Shift: 0, Width: 4}
	TGT  = Bit(8)
	FMI  = Field{Shift: 8, Width: 8}
	TIME = Field{Shift: 16, Width: 16}
)

// FMR
var FINIT = Bit(0)
