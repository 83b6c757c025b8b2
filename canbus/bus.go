package canbus

import (
	"errors"
	"sync"
)

// Receiver is a node that observes frames on a bus.
type Receiver interface {
	Deliver(f Frame)
}

// An Acknowledger decides per frame whether it acknowledges.
// Receivers not implementing it always acknowledge, unless joined
// as listeners.
type Acknowledger interface {
	Acknowledges() bool
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(f Frame)

func (fn ReceiverFunc) Deliver(f Frame) { fn(f) }

// Port is a node's connection to a bus.
type Port interface {
	// Transmit puts f on the bus and reports whether at least one
	// other node acknowledged it.
	Transmit(f Frame) (acked bool)
}

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("canbus: closed")

// Bus is an in-process CAN bus. Every frame transmitted through a
// Port is delivered to all other nodes; nodes joined as listeners
// observe frames without acknowledging them.
type Bus struct {
	mu    sync.RWMutex
	nodes []*node
}

type node struct {
	bus    *Bus
	r      Receiver
	silent bool
}

func NewBus() *Bus {
	return new(Bus)
}

// Join attaches an acknowledging node.
func (b *Bus) Join(r Receiver) Port {
	return b.join(r, false)
}

// Listen attaches a node that never acknowledges.
func (b *Bus) Listen(r Receiver) Port {
	return b.join(r, true)
}

func (b *Bus) join(r Receiver, silent bool) *node {
	n := &node{bus: b, r: r, silent: silent}
	b.mu.Lock()
	b.nodes = append(b.nodes, n)
	b.mu.Unlock()
	return n
}

// Leave detaches the node behind p.
func (b *Bus) Leave(p Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.nodes {
		if Port(n) == p {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			return
		}
	}
}

func (n *node) Transmit(f Frame) bool {
	b := n.bus
	b.mu.RLock()
	others := make([]*node, 0, len(b.nodes))
	for _, o := range b.nodes {
		if o != n {
			others = append(others, o)
		}
	}
	b.mu.RUnlock()

	acked := false
	for _, o := range others {
		ack := !o.silent
		if a, ok := o.r.(Acknowledger); ok && ack {
			ack = a.Acknowledges()
		}
		o.r.Deliver(f)
		if ack {
			acked = true
		}
	}
	return acked
}
