package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SettingsVersion is the current version of the settings file format.
const SettingsVersion = 1

// ErrVersion indicates a settings file written by a newer format.
var ErrVersion = errors.New("unsupported settings version")

// Settings is the non-volatile state of one node.
type Settings struct {
	// Version is the settings file format version.
	Version int `json:"version"`

	// SavedAt is when the settings were last saved.
	SavedAt time.Time `json:"saved_at"`

	// ExtAddress is the extended MAC address, hex encoded.
	ExtAddress string `json:"ext_address,omitempty"`

	// FrameCounter is the next outgoing MAC frame counter. A node reserves a
	// block of counters ahead of use and persists the end of the block.
	FrameCounter uint32 `json:"frame_counter,omitempty"`

	// MeshLocalIID is the interface identifier of the mesh-local EID, hex
	// encoded.
	MeshLocalIID string `json:"mesh_local_iid,omitempty"`

	// SrpKey is the SRP client key material.
	SrpKey []byte `json:"srp_key,omitempty"`

	// Dataset is the last active dataset as MeshCoP TLV hex.
	Dataset string `json:"dataset,omitempty"`

	// Registrations are the SRP registrations a registrar accepted.
	Registrations []Registration `json:"registrations,omitempty"`
}

// Registration is one host registration held by a registrar.
type Registration struct {
	// Host is the host label.
	Host string `json:"host"`

	// Key identifies the owner of the host name.
	Key []byte `json:"key,omitempty"`

	// Addresses are the host's IPv6 addresses.
	Addresses []string `json:"addresses,omitempty"`

	// Services are the registered service instances, as "instance.type".
	Services []ServiceRegistration `json:"services,omitempty"`

	// ExpiresAt is when the lease runs out.
	ExpiresAt time.Time `json:"expires_at"`
}

// ServiceRegistration is one service instance of a Registration.
type ServiceRegistration struct {
	Name     string            `json:"name"`
	Instance string            `json:"instance"`
	Port     uint16            `json:"port"`
	Subtypes []string          `json:"subtypes,omitempty"`
	Txt      map[string]string `json:"txt,omitempty"`
}

// SettingsStore manages persistence of node settings to a JSON file.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore creates a settings store backed by path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Path returns the backing file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Save persists the settings to disk. The file is replaced atomically.
func (s *SettingsStore) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	settings.Version = SettingsVersion
	settings.SavedAt = time.Now()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the settings from disk.
// Returns nil, nil if the file doesn't exist (factory state).
func (s *SettingsStore) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if settings.Version > SettingsVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, settings.Version)
	}

	return settings, nil
}

// Update loads the settings, applies fn and saves the result. Missing
// settings start empty.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	cur, err := s.Load()
	if err != nil {
		return err
	}
	if cur == nil {
		cur = &Settings{}
	}
	fn(cur)
	return s.Save(cur)
}

// Clear removes the settings file (factory reset).
func (s *SettingsStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
