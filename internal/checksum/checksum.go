// Package checksum computes the integrity values the game API requires on
// device registration, credential login and time-bound calls.
//
// Every function is pure: the same inputs always give the same lowercase hex
// digest. The construction (field order plus a shared key) must match the
// server byte for byte, otherwise every authenticated call is refused.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

const (
	// DefaultKey is the shared key appended to every checksum input.
	DefaultKey = "savysoda"
	// DefaultSalt is the salt used by the credential checksum.
	DefaultSalt = "5343"
)

// Engine holds the shared key and salt. The zero value uses the defaults.
type Engine struct {
	Key  string
	Salt string
}

// NewEngine returns an engine for key and salt; empty strings select the defaults.
func NewEngine(key, salt string) Engine {
	return Engine{Key: key, Salt: salt}
}

func (e Engine) key() string {
	if e.Key == "" {
		return DefaultKey
	}
	return e.Key
}

// SaltValue returns the credential salt in effect.
func (e Engine) SaltValue() string {
	if e.Salt == "" {
		return DefaultSalt
	}
	return e.Salt
}

// CreateDevice is the device-registration checksum sent with DeviceLogin.
func (e Engine) CreateDevice(deviceKey, deviceType string) string {
	return digest(deviceKey, "DeviceType", deviceType, e.key())
}

// TimeForDate is the time-bound checksum over .NET ticks of the client timestamp.
func (e Engine) TimeForDate(ticks int64) string {
	return digest(strconv.FormatInt(ticks, 10), e.key())
}

// PasswordWithString is the token-bound checksum.
func (e Engine) PasswordWithString(s string) string {
	return digest(s, e.key())
}

// Freshness concatenates the time-bound and token-bound checksums, the form
// HeartBeat4, AddStarbux2 and CollectReward2 expect.
func (e Engine) Freshness(ticks int64, accessToken string) string {
	return e.TimeForDate(ticks) + e.PasswordWithString(accessToken)
}

// EmailAuthorize is the credential checksum for UserEmailPasswordAuthorize2
// and the other calls that bind device, account and time together.
func (e Engine) EmailAuthorize(deviceKey, email, timestamp, accessToken, salt string) string {
	return digest(deviceKey, email, timestamp, accessToken, salt, e.key())
}

func digest(parts ...string) string {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
