package log

import (
	"testing"
	"time"
)

func TestEnabled(t *testing.T) {
	var nilMulti *MultiLogger
	tests := []struct {
		name   string
		logger Logger
		want   bool
	}{
		{"nil", nil, false},
		{"noop", NoopLogger{}, false},
		{"noop pointer", &NoopLogger{}, false},
		{"nil multi", nilMulti, false},
		{"empty multi", NewMultiLogger(nil), false},
		{"multi", NewMultiLogger(&recordingLogger{}), true},
		{"recorder", &recordingLogger{}, true},
	}
	for _, tt := range tests {
		if got := Enabled(tt.logger); got != tt.want {
			t.Errorf("%s: Enabled = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOriginStamp(t *testing.T) {
	o := Origin{InstanceID: "inst-1", ExtAddress: [8]byte{0x02, 0, 0, 0xff, 0xfe, 0, 0x12, 0x34}}

	e := o.Stamp(Event{Layer: LayerMesh, InstanceID: "stale"})
	if e.InstanceID != "inst-1" {
		t.Errorf("InstanceID = %q", e.InstanceID)
	}
	if e.ExtAddress != "020000fffe001234" {
		t.Errorf("ExtAddress = %q", e.ExtAddress)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if e.Layer != LayerMesh {
		t.Errorf("Layer = %s", e.Layer)
	}

	at := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	if e := o.Stamp(Event{Timestamp: at}); !e.Timestamp.Equal(at) {
		t.Errorf("Timestamp overwritten: %v", e.Timestamp)
	}
}
