package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewSettingsStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		store := NewSettingsStore(filepath.Join(t.TempDir(), "node", "settings.json"))

		in := &Settings{
			ExtAddress:   "1234567890abcdef",
			FrameCounter: 2000,
			MeshLocalIID: "0011223344556677",
			SrpKey:       []byte{1, 2, 3},
			Dataset:      "0e080000000000010000",
			Registrations: []Registration{{
				Host:      "node-1",
				Addresses: []string{"fd00::1"},
				Services: []ServiceRegistration{{
					Name:     "_foo._tcp",
					Instance: "srp1",
					Port:     777,
					Subtypes: []string{"foo"},
					Txt:      map[string]string{"a": "b"},
				}},
				ExpiresAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}},
		}
		if err := store.Save(in); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != SettingsVersion {
			t.Errorf("Version = %d, want %d", got.Version, SettingsVersion)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if got.ExtAddress != in.ExtAddress || got.FrameCounter != 2000 || got.MeshLocalIID != in.MeshLocalIID {
			t.Errorf("identity mismatch: %+v", got)
		}
		if string(got.SrpKey) != string(in.SrpKey) || got.Dataset != in.Dataset {
			t.Errorf("key or dataset mismatch: %+v", got)
		}
		if len(got.Registrations) != 1 {
			t.Fatalf("Registrations = %d, want 1", len(got.Registrations))
		}
		r := got.Registrations[0]
		if r.Host != "node-1" || !r.ExpiresAt.Equal(in.Registrations[0].ExpiresAt) {
			t.Errorf("registration = %+v", r)
		}
		if len(r.Services) != 1 || r.Services[0].Port != 777 || r.Services[0].Txt["a"] != "b" {
			t.Errorf("services = %+v", r.Services)
		}
	})

	t.Run("Update", func(t *testing.T) {
		store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))

		if err := store.Update(func(s *Settings) { s.FrameCounter = 1000 }); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := store.Update(func(s *Settings) { s.FrameCounter += 1000 }); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatal(err)
		}
		if got.FrameCounter != 2000 {
			t.Errorf("FrameCounter = %d, want 2000", got.FrameCounter)
		}
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := NewSettingsStore(path).Load()
		if !errors.Is(err, ErrVersion) {
			t.Errorf("Load() error = %v, want ErrVersion", err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSettingsStore(path).Load(); err == nil {
			t.Error("Load() of corrupt file succeeded")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
		if err := store.Save(&Settings{FrameCounter: 1}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		got, err := store.Load()
		if err != nil || got != nil {
			t.Errorf("after Clear: %v, %v", got, err)
		}
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}
