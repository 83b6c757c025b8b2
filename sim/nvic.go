package sim

import (
	"sync"

	"github.com/knieriem/bxcan/periph/nvic"
)

const nvicWords = (nvic.NumIRQ + 31) / 32

// NVIC models the register block of the interrupt controller:
// writes of ones to ISER/ICER set or clear enable bits, writes to
// ISPR/ICPR set or clear pending bits, reads of either register of
// a pair return the current bits.
type NVIC struct {
	mu      sync.Mutex
	enable  [nvicWords]uint32
	pending [nvicWords]uint32
	active  [nvicWords]uint32
	prio    [(nvic.NumIRQ + 3) / 4]uint32
}

func NewNVIC() *NVIC {
	return new(NVIC)
}

// bank maps off to one of the bit registers.
func (n *NVIC) bank(off uint32) (bits *[nvicWords]uint32, set bool, i int, ok bool) {
	group, rel := off&^0x7F, off&0x7F
	i = int(rel / 4)
	if rel%4 != 0 || i >= nvicWords {
		return nil, false, 0, false
	}
	switch group {
	case nvic.ISER:
		return &n.enable, true, i, true
	case nvic.ICER:
		return &n.enable, false, i, true
	case nvic.ISPR:
		return &n.pending, true, i, true
	case nvic.ICPR:
		return &n.pending, false, i, true
	case nvic.IABR:
		return &n.active, true, i, true
	}
	return nil, false, 0, false
}

func (n *NVIC) Load(off uint32) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if off >= nvic.IPR {
		if i := int(off-nvic.IPR) / 4; i < len(n.prio) {
			return n.prio[i]
		}
		return 0
	}
	if bits, _, i, ok := n.bank(off); ok {
		return bits[i]
	}
	return 0
}

func (n *NVIC) Store(off uint32, v uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if off >= nvic.IPR {
		if i := int(off-nvic.IPR) / 4; i < len(n.prio) {
			// only the upper nibble of each byte is implemented
			n.prio[i] = v & 0xF0F0F0F0
		}
		return
	}
	bits, set, i, ok := n.bank(off)
	if !ok || bits == &n.active {
		return
	}
	if set {
		bits[i] |= v
	} else {
		bits[i] &^= v
	}
}
