package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/knieriem/bxcan/canbus"
)

func TestWriteRead(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	frames := []canbus.Frame{
		{ID: 0x123, Len: 2, Data: [8]byte{0xAB, 0xCD}},
		{ID: 0x18DAF110, Extended: true, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{ID: 0x7FF, RTR: true, Len: 4},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Source = "node1"
	tick := t0
	w.Now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	if w.Count() != len(frames) {
		t.Fatalf("count %d", w.Count())
	}

	recs, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != len(frames) {
		t.Fatalf("%d records", len(recs))
	}
	for i, rec := range recs {
		f, err := rec.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if f != frames[i] {
			t.Errorf("record %d: %v, want %v", i, f, frames[i])
		}
		if rec.Source != "node1" {
			t.Errorf("record %d: source %q", i, rec.Source)
		}
		if want := t0.Add(time.Duration(i+1) * time.Millisecond); !rec.At().Equal(want) {
			t.Errorf("record %d: time %v", i, rec.At())
		}
	}
	if recs[2].Data != nil {
		t.Error("remote frame with data")
	}
}

func TestReaderEOF(t *testing.T) {
	var rec Record
	if err := NewReader(bytes.NewReader(nil)).Next(&rec); err != io.EOF {
		t.Errorf("got %v", err)
	}
	err := NewReader(bytes.NewReader([]byte{0xFF, 0x00})).Next(&rec)
	if err == nil || err == io.EOF {
		t.Errorf("got %v", err)
	}
}

func TestInvalidRecord(t *testing.T) {
	rec := Record{ID: 0x800, Len: 1, Data: []byte{1}}
	if _, err := rec.Frame(); !errors.Is(err, canbus.ErrInvalidID) {
		t.Errorf("got %v", err)
	}
	rec = Record{ID: 1, Len: 8, Data: make([]byte, 9)}
	if _, err := rec.Frame(); !errors.Is(err, canbus.ErrInvalidLen) {
		t.Errorf("got %v", err)
	}
}

func TestListener(t *testing.T) {
	bus := canbus.NewBus()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	bus.Listen(w)
	p := bus.Join(canbus.ReceiverFunc(func(canbus.Frame) {}))
	if p.Transmit(canbus.Frame{ID: 5}) {
		t.Error("frame acknowledged by a listener")
	}
	if w.Err() != nil || w.Count() != 1 {
		t.Fatalf("count %d, err %v", w.Count(), w.Err())
	}

	data, err := Marshal(&Record{ID: 5})
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := NewReader(&buf).Next(&rec); err != nil {
		t.Fatal(err)
	}
	rec.Time = 0
	again, _ := Marshal(&rec)
	if !bytes.Equal(data, again) {
		t.Errorf("encoding %x, want %x", again, data)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStickyError(t *testing.T) {
	w := NewWriter(failWriter{})
	w.Deliver(canbus.Frame{ID: 1})
	w.Deliver(canbus.Frame{ID: 2})
	if w.Err() == nil || w.Count() != 0 {
		t.Errorf("count %d, err %v", w.Count(), w.Err())
	}
}
