package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tachikoma-bot/tachikoma/internal/device"
)

// DeviceStore persists device registrations in device.yaml under a data
// directory. Refresh tokens are sealed with a Vault before they touch disk.
type DeviceStore struct {
	path  string
	vault *Vault
	mu    sync.Mutex
}

type deviceFile struct {
	Devices map[string]device.State `yaml:"devices"`
}

// OpenDeviceStore opens the store in dir, creating the directory and vault salt if needed.
func OpenDeviceStore(dir string) (*DeviceStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	vault, err := OpenVault(filepath.Join(dir, "vault.salt"))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return &DeviceStore{path: filepath.Join(dir, "device.yaml"), vault: vault}, nil
}

// Path returns the device file location.
func (s *DeviceStore) Path() string {
	return s.path
}

// LoadDevice returns the device stored under profile. The boolean is false
// when none has been stored yet.
func (s *DeviceStore) LoadDevice(profile string) (device.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return device.State{}, false, err
	}
	st, ok := f.Devices[profile]
	if !ok {
		return device.State{}, false, nil
	}
	token, err := s.vault.Open(st.RefreshToken)
	if err != nil {
		return device.State{}, false, fmt.Errorf("failed to decrypt refresh token for %s: %w", profile, err)
	}
	st.RefreshToken = token
	return st, true, nil
}

// StoreDevice writes state under profile, sealing its refresh token.
func (s *DeviceStore) StoreDevice(profile string, state device.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal(state.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token for %s: %w", profile, err)
	}
	state.RefreshToken = sealed
	f.Devices[profile] = state

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal device file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write device file: %w", err)
	}
	return nil
}

// Profile binds the store to one profile so it satisfies device.Persister.
func (s *DeviceStore) Profile(name string) device.Persister {
	return profilePersister{store: s, profile: name}
}

func (s *DeviceStore) read() (*deviceFile, error) {
	f := &deviceFile{Devices: map[string]device.State{}}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse device file: %w", err)
	}
	if f.Devices == nil {
		f.Devices = map[string]device.State{}
	}
	return f, nil
}

type profilePersister struct {
	store   *DeviceStore
	profile string
}

func (p profilePersister) SaveDevice(state device.State) error {
	return p.store.StoreDevice(p.profile, state)
}
