// Package capture records CAN frames as a stream of CBOR encoded
// records, and reads them back.
package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/knieriem/bxcan/canbus"
)

// Record is a captured frame. Integer keys keep the encoding compact.
type Record struct {
	Time     int64  `cbor:"1,keyasint"` // Unix time in nanoseconds
	ID       uint32 `cbor:"2,keyasint"`
	Extended bool   `cbor:"3,keyasint,omitempty"`
	RTR      bool   `cbor:"4,keyasint,omitempty"`
	Len      uint8  `cbor:"5,keyasint"`
	Data     []byte `cbor:"6,keyasint,omitempty"`
	Source   string `cbor:"7,keyasint,omitempty"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// NewRecord returns the record of f, captured at time t.
func NewRecord(f canbus.Frame, t time.Time) Record {
	rec := Record{
		Time:     t.UnixNano(),
		ID:       f.ID,
		Extended: f.Extended,
		RTR:      f.RTR,
		Len:      f.Len,
	}
	if !f.RTR && f.Len > 0 {
		rec.Data = append([]byte(nil), f.Payload()...)
	}
	return rec
}

func (rec *Record) At() time.Time {
	return time.Unix(0, rec.Time)
}

// Frame returns the captured frame.
func (rec *Record) Frame() (canbus.Frame, error) {
	f := canbus.Frame{
		ID:       rec.ID,
		Extended: rec.Extended,
		RTR:      rec.RTR,
		Len:      rec.Len,
	}
	if len(rec.Data) > len(f.Data) {
		return f, fmt.Errorf("capture: %d data bytes: %w", len(rec.Data), canbus.ErrInvalidLen)
	}
	copy(f.Data[:], rec.Data)
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("capture: %w", err)
	}
	return f, nil
}

// Marshal encodes a single record.
func Marshal(rec *Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

// Unmarshal decodes a single record.
func Unmarshal(data []byte, rec *Record) error {
	if err := cbor.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("capture: failed to decode record: %w", err)
	}
	return nil
}

// Writer appends records to a stream. It implements
// canbus.Receiver, so it can listen on a bus.
type Writer struct {
	// Source, if set, is stored with each record.
	Source string
	// Now returns the capture time; it defaults to time.Now.
	Now func() time.Time

	mu  sync.Mutex
	enc *cbor.Encoder
	n   int
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// WriteFrame appends a record of f.
func (w *Writer) WriteFrame(f canbus.Frame) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	rec := NewRecord(f, now())
	rec.Source = w.Source
	return w.Write(&rec)
}

func (w *Writer) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = fmt.Errorf("capture: %w", err)
		return w.err
	}
	w.n++
	return nil
}

// Deliver records f. Errors are kept and reported by Err.
func (w *Writer) Deliver(f canbus.Frame) {
	w.WriteFrame(f)
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Err returns the first error that occurred while writing.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Reader decodes records from a stream.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next decodes the next record. At the end of the stream it
// returns io.EOF.
func (r *Reader) Next(rec *Record) error {
	*rec = Record{}
	err := r.dec.Decode(rec)
	if err == io.EOF {
		return err
	}
	if err != nil {
		return fmt.Errorf("capture: failed to decode record: %w", err)
	}
	return nil
}

// ReadAll decodes all remaining records.
func (r *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for {
		var rec Record
		err := r.Next(&rec)
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
