package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.tlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), InstanceID: "inst-1", Direction: DirectionIn, Layer: LayerRadio, Category: CategoryMessage},
		{Timestamp: time.Now(), InstanceID: "inst-2", Direction: DirectionOut, Layer: LayerSocket, Category: CategoryMessage},
		{Timestamp: time.Now(), InstanceID: "inst-3", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
	}

	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	for i, want := range []string{"inst-1", "inst-2", "inst-3"} {
		if read[i].InstanceID != want {
			t.Errorf("event %d: got %q, want %q", i, read[i].InstanceID, want)
		}
	}
}

func TestReaderFilterByLayer(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), Layer: LayerRadio},
		{Timestamp: time.Now(), Layer: LayerSocket},
		{Timestamp: time.Now(), Layer: LayerRadio},
	}
	path := createTestLogFile(t, events)

	layer := LayerRadio
	reader, err := NewFilteredReader(path, Filter{Layer: &layer})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for event, err := range reader.All() {
		if err != nil {
			t.Fatalf("All yielded error: %v", err)
		}
		if event.Layer != LayerRadio {
			t.Errorf("got layer %s", event.Layer)
		}
		count++
	}
	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
}

func TestReaderFilterByEntity(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntityRole, NewState: "LEADER"}},
		{Timestamp: time.Now(), Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntitySrpClient, NewState: "REGISTERED"}},
		{Timestamp: time.Now(), Category: CategoryMessage},
	}
	path := createTestLogFile(t, events)

	entity := StateEntitySrpClient
	reader, err := NewFilteredReader(path, Filter{Entity: &entity})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.StateChange.NewState != "REGISTERED" {
		t.Errorf("got %q", event.StateChange.NewState)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFilterTimeRange(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)
	f := Filter{TimeStart: &start, TimeEnd: &end}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{base, false},
		{start, true},
		{base.Add(2 * time.Second), true},
		{end, false},
	}
	for _, tt := range tests {
		if got := f.Matches(Event{Timestamp: tt.at}); got != tt.want {
			t.Errorf("Matches(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}
