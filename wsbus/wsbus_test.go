package wsbus

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/knieriem/bxcan/canbus"
)

func dial(t *testing.T, srv *httptest.Server, source string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	c.Source = source
	t.Cleanup(func() { c.Close() })
	return c
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("%d clients, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	c := dial(t, srv, "c")
	waitClients(t, h, 3)

	recv := func(c *Client) <-chan canbus.Frame {
		ch := make(chan canbus.Frame, 4)
		go c.Serve(canbus.ReceiverFunc(func(f canbus.Frame) { ch <- f }))
		return ch
	}
	ra, rb, rc := recv(a), recv(b), recv(c)

	f := canbus.Frame{ID: 0x18DAF110, Extended: true, Len: 3, Data: [8]byte{2, 0x10, 3}}
	if !a.Transmit(f) {
		t.Fatal("transmit failed")
	}
	for _, ch := range []<-chan canbus.Frame{rb, rc} {
		select {
		case got := <-ch:
			if got != f {
				t.Errorf("got %v, want %v", got, f)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("frame not relayed")
		}
	}
	select {
	case got := <-ra:
		t.Errorf("sender received its own frame %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientClose(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv, "a")
	waitClients(t, h, 1)
	done := make(chan error, 1)
	go func() { done <- a.Serve(canbus.ReceiverFunc(func(canbus.Frame) {})) }()
	a.Close()
	select {
	case err := <-done:
		if err != ErrConnectionClosed {
			t.Errorf("got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	waitClients(t, h, 0)
}
