// Package device holds the persistent device registration a session logs in with.
package device

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

// DefaultType is the platform name baked into DeviceLogin as DeviceType<name>.
const DefaultType = "Android"

// DefaultLanguage is the language key used when none is configured.
const DefaultLanguage = "en"

// State is the persisted form of a Device.
type State struct {
	Key          string `yaml:"key"`
	Type         string `yaml:"type"`
	LanguageKey  string `yaml:"languageKey"`
	RefreshToken string `yaml:"refreshToken,omitempty"`
}

// Persister stores a device's state when its refresh token changes.
type Persister interface {
	SaveDevice(state State) error
}

// Device is one device registration. Key never changes after creation; the
// refresh token is empty for guests and otherwise an opaque server-issued blob.
type Device struct {
	key         string
	typeName    string
	languageKey string

	mu           sync.RWMutex
	refreshToken string
	persister    Persister
}

// New creates a device with a fresh key. A non-empty authString is adopted as
// the refresh token; otherwise the device starts as a guest.
func New(languageKey, authString string) *Device {
	return Restore(State{
		Key:          NewKey(),
		LanguageKey:  languageKey,
		RefreshToken: authString,
	})
}

// Restore rebuilds a device from persisted state, filling defaults for empty fields.
func Restore(s State) *Device {
	if s.Key == "" {
		s.Key = NewKey()
	}
	if s.Type == "" {
		s.Type = DefaultType
	}
	if s.LanguageKey == "" {
		s.LanguageKey = DefaultLanguage
	}
	return &Device{
		key:          s.Key,
		typeName:     s.Type,
		languageKey:  s.LanguageKey,
		refreshToken: strings.TrimSpace(s.RefreshToken),
	}
}

// NewKey generates a device key: 32 lowercase hex characters.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithType sets the device-type name. It returns d for chaining.
func (d *Device) WithType(name string) *Device {
	if name != "" {
		d.typeName = name
	}
	return d
}

// WithPersister makes every refresh-token change reach p.
func (d *Device) WithPersister(p Persister) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.persister = p
	return d
}

func (d *Device) Key() string         { return d.key }
func (d *Device) Type() string        { return d.typeName }
func (d *Device) LanguageKey() string { return d.languageKey }

// RefreshToken returns the stored refresh token, "" for a guest.
func (d *Device) RefreshToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refreshToken
}

// HasRefreshToken reports whether the device is bound to an account.
func (d *Device) HasRefreshToken() bool {
	return d.RefreshToken() != ""
}

// AcquireRefreshToken replaces the stored refresh token. The token is opaque
// and not validated. A persistence failure is logged, never returned.
func (d *Device) AcquireRefreshToken(token string) {
	d.mu.Lock()
	d.refreshToken = token
	p := d.persister
	d.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.SaveDevice(d.State()); err != nil {
		logging.GetSessionLogger().Warn("Failed to persist refresh token", "device", d.key, "error", err.Error())
	}
}

// State returns the persisted form of d.
func (d *Device) State() State {
	return State{
		Key:          d.key,
		Type:         d.typeName,
		LanguageKey:  d.languageKey,
		RefreshToken: d.RefreshToken(),
	}
}
