package log

import (
	"testing"
	"time"
)

// recordingLogger records events for testing
type recordingLogger struct {
	events []Event
}

func (m *recordingLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	l1 := &recordingLogger{}
	l2 := &recordingLogger{}

	multi := NewMultiLogger(l1, nil, l2)
	if multi.Len() != 2 {
		t.Fatalf("Len = %d, want 2", multi.Len())
	}

	multi.Log(Event{Timestamp: time.Now(), InstanceID: "inst-9"})

	for i, l := range []*recordingLogger{l1, l2} {
		if len(l.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(l.events))
			continue
		}
		if l.events[0].InstanceID != "inst-9" {
			t.Errorf("logger %d: got %q", i, l.events[0].InstanceID)
		}
	}
}

func TestNewDatagramEventTruncates(t *testing.T) {
	payload := make([]byte, MaxCaptureDataSize+10)
	ev := NewDatagramEvent("[fe80::1]:1212", "[fe80::2]:5000", payload)
	if ev.Length != len(payload) {
		t.Errorf("Length = %d", ev.Length)
	}
	if !ev.Truncated || len(ev.Payload) != MaxCaptureDataSize {
		t.Errorf("expected truncation to %d, got %d (truncated=%v)", MaxCaptureDataSize, len(ev.Payload), ev.Truncated)
	}

	small := NewFrameEvent([]byte{1, 2, 3})
	if small.Truncated || small.Size != 3 {
		t.Errorf("small frame: %+v", small)
	}
}
