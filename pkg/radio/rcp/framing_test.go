package rcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/threadkit/threadkit-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"small message", []byte("hello")},
		{"max size message", bytes.Repeat([]byte("y"), MaxMessageSize)},
		{"single byte", []byte{0x42}},
		{"binary data", []byte{0x00, 0xFF, 0x7F, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := NewFrameWriter(buf).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != LengthPrefixSize+len(tt.payload) {
				t.Errorf("frame size = %d, want %d", buf.Len(), LengthPrefixSize+len(tt.payload))
			}
			got, err := NewFrameReader(buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	w := NewFrameWriter(io.Discard)
	if err := w.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty: got %v", err)
	}
	if err := w.WriteFrame(make([]byte, MaxMessageSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized: got %v", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint16) []byte {
		return binary.BigEndian.AppendUint16(nil, n)
	}
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"eof between frames", nil, io.EOF},
		{"truncated prefix", []byte{0x00}, ErrFrameTruncated},
		{"truncated payload", append(prefix(10), 1, 2, 3), ErrFrameTruncated},
		{"missing payload", prefix(10), ErrFrameTruncated},
		{"zero length", prefix(0), ErrMessageEmpty},
		{"oversized", prefix(MaxMessageSize + 1), ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.input)).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrameReaderMultiple(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewFrameWriter(buf)
	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range msgs {
		if err := w.WriteFrame(m); err != nil {
			t.Fatal(err)
		}
	}
	r := NewFrameReader(buf)
	for _, want := range msgs {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("after last frame: got %v, want io.EOF", err)
	}
}

type recordLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func TestFramerCapture(t *testing.T) {
	buf := new(bytes.Buffer)
	rec := &recordLogger{}
	f := NewFramer(buf)
	f.SetLogger(rec, "/dev/ttyACM0")

	if err := f.WriteFrame([]byte("out")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for i, dir := range []log.Direction{log.DirectionOut, log.DirectionIn} {
		e := events[i]
		if e.Direction != dir || e.Layer != log.LayerRadio || e.Category != log.CategoryControl {
			t.Errorf("event %d: %s %s %s", i, e.Direction, e.Layer, e.Category)
		}
		if e.Peer != "/dev/ttyACM0" || e.Frame == nil || string(e.Frame.Data) != "out" {
			t.Errorf("event %d: peer %q frame %+v", i, e.Peer, e.Frame)
		}
	}
}
