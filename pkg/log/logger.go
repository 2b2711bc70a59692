package log

import (
	"encoding/hex"
	"time"
)

// Logger receives protocol capture events from the engine, the mesh and the
// radio backends. Pass nil or NoopLogger to disable capture.
type Logger interface {
	// Log records one event. Implementations must be safe for concurrent
	// use: the engine logs from its run loop and the radio pump at once,
	// and a slow Log delays radio handling.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// Enabled reports whether events sent to l are recorded anywhere. Producers
// check it once so disabled capture costs no event construction.
func Enabled(l Logger) bool {
	switch l := l.(type) {
	case nil, NoopLogger, *NoopLogger:
		return false
	case *MultiLogger:
		return l != nil && l.Len() > 0
	}
	return true
}

// Origin identifies the node that produced an event.
type Origin struct {
	InstanceID string
	ExtAddress [8]byte
}

// Stamp fills the node identity of e and its timestamp when unset.
func (o Origin) Stamp(e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.InstanceID = o.InstanceID
	e.ExtAddress = hex.EncodeToString(o.ExtAddress[:])
	return e
}
