// Package wsbus connects CAN nodes in different processes through a
// websocket hub. Each frame travels as a binary message holding one
// CBOR encoded capture record.
package wsbus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/capture"
)

// ErrConnectionClosed is returned by Serve after Close.
var ErrConnectionClosed = errors.New("wsbus: connection closed")

func encode(f canbus.Frame, source string) ([]byte, error) {
	rec := capture.NewRecord(f, time.Now())
	rec.Source = source
	return capture.Marshal(&rec)
}

func decode(data []byte) (canbus.Frame, *capture.Record, error) {
	var rec capture.Record
	if err := capture.Unmarshal(data, &rec); err != nil {
		return canbus.Frame{}, nil, err
	}
	f, err := rec.Frame()
	return f, &rec, err
}

// peer is a connection, with writes serialized.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Hub relays each frame received from one client to all others.
type Hub struct {
	// Logger, if set, receives connection events and relay errors.
	Logger *log.Logger
	// Verbose enables logging of each relayed frame.
	Verbose bool

	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		peers: make(map[*peer]bool),
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	p := &peer{conn: conn}
	h.mu.Lock()
	h.peers[p] = true
	h.mu.Unlock()
	h.logf("client %s connected", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.peers, p)
		h.mu.Unlock()
		conn.Close()
		h.logf("client %s disconnected", r.RemoteAddr)
	}()
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		f, rec, err := decode(data)
		if err != nil {
			h.logf("client %s: %v", r.RemoteAddr, err)
			continue
		}
		if h.Verbose {
			h.logf("%s: %v", rec.Source, f)
		}
		h.relay(p, data)
	}
}

func (h *Hub) relay(from *peer, data []byte) {
	h.mu.Lock()
	others := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p != from {
			others = append(others, p)
		}
	}
	h.mu.Unlock()
	for _, p := range others {
		if err := p.write(data); err != nil {
			h.logf("relay: %v", err)
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		p.conn.Close()
	}
	return nil
}

// Client is a node's connection to a hub. It implements
// canbus.Port.
type Client struct {
	// Source names the node in transmitted records.
	Source string

	p *peer

	mu     sync.Mutex
	closed bool
}

// Dial connects to the hub at url, like ws://localhost:8080/bus.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsbus: connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsbus: connection failed: %w", err)
	}
	return &Client{p: &peer{conn: conn}}, nil
}

// Transmit sends f to the hub. The relay does not report whether
// another node acknowledged the frame, so a successful write counts
// as acknowledged.
func (c *Client) Transmit(f canbus.Frame) bool {
	data, err := encode(f, c.Source)
	if err != nil {
		return false
	}
	return c.p.write(data) == nil
}

// Serve delivers frames relayed by the hub to r until the
// connection fails or is closed.
func (c *Client) Serve(r canbus.Receiver) error {
	for {
		typ, data, err := c.p.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return ErrConnectionClosed
			}
			return err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		f, _, err := decode(data)
		if err != nil {
			continue
		}
		r.Deliver(f)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.p.mu.Lock()
	c.p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.p.mu.Unlock()
	return c.p.conn.Close()
}
