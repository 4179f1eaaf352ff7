// Package session owns the access-token lifecycle for one device: device
// login, guest or credentialed login, request dispatch with a single
// reauthorize-and-retry on token expiry, and the heartbeat the server expects.
//
// A Client is safe for concurrent use. Token and user fields are guarded by a
// mutex and reauthorization is a critical section, so concurrent callers that
// hit an expired token reauthorize once between them.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/checksum"
	"github.com/tachikoma-bot/tachikoma/internal/clock"
	"github.com/tachikoma-bot/tachikoma/internal/device"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/transport"
)

// State is the session's position in its login lifecycle.
type State int

const (
	Unauthenticated State = iota
	TokenAcquired
	LoggedIn
	Active
	Reauthorizing
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case TokenAcquired:
		return "token_acquired"
	case LoggedIn:
		return "logged_in"
	case Active:
		return "active"
	case Reauthorizing:
		return "reauthorizing"
	default:
		return "unknown"
	}
}

// GuestName is the display name used for devices not bound to an account.
const GuestName = "guest"

// UserHandle is the player parsed from a login response.
type UserHandle struct {
	ID                string
	DisplayName       string
	Email             string
	LastHeartbeatAt   time.Time
	Authorized        bool
	Credits           int
	DailyRewardStatus int
	FreeStarbuxToday  int
}

// Response is a raw transport response classified once.
type Response struct {
	Status int
	Body   []byte
	Result protocol.Result
}

// Options configure a Client. Transport is required; a zero Checksum uses
// the default key and salt.
type Options struct {
	BaseURL           string
	Transport         transport.Doer
	Checksum          checksum.Engine
	Time              *clock.Source
	HeartbeatInterval time.Duration
	Logger            *logging.Logger
}

// Client is one session bound to one device.
type Client struct {
	baseURL           string
	transport         transport.Doer
	checksum          checksum.Engine
	time              *clock.Source
	heartbeatInterval time.Duration
	device            *device.Device

	// reauth serializes QuickReload so only one caller refreshes the token.
	reauth sync.Mutex

	mu           sync.RWMutex
	state        State
	accessToken  string
	lastChecksum string
	user         *UserHandle
	authorized   bool
	baseLog      *logging.Logger
	log          *logging.Logger
}

// New creates a Client for dev.
func New(dev *device.Device, opts Options) *Client {
	c := &Client{
		baseURL:           opts.BaseURL,
		transport:         opts.Transport,
		checksum:          opts.Checksum,
		time:              opts.Time,
		heartbeatInterval: opts.HeartbeatInterval,
		device:            dev,
		log:               opts.Logger,
	}
	if c.time == nil {
		c.time = clock.NewSource(nil, 0)
	}
	if c.heartbeatInterval <= 0 {
		c.heartbeatInterval = time.Minute
	}
	if c.log == nil {
		c.log = logging.GetSessionLogger()
	}
	c.baseLog = c.log
	return c
}

func (c *Client) Device() *device.Device { return c.device }
func (c *Client) BaseURL() string        { return c.baseURL }

// Time returns the timestamp source requests must stamp with.
func (c *Client) Time() *clock.Source { return c.time }

// Checksums returns the engine used for request checksums.
func (c *Client) Checksums() checksum.Engine { return c.checksum }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// AccessToken returns the current access token, "" when none is held.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// LastChecksum returns the most recently computed login checksum.
func (c *Client) LastChecksum() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastChecksum
}

// Authorized reports whether the server last accepted the access token.
func (c *Client) Authorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorized
}

// User returns a copy of the logged-in player.
func (c *Client) User() (UserHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return UserHandle{}, apperrors.New(apperrors.KindMalformed, "session.User").
			WithMessage("no user handle: login has not succeeded").
			Silent().
			Build()
	}
	return *c.user, nil
}

// PlayerName returns the display name for log lines, "" before login.
func (c *Client) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.DisplayName
}

// Logger returns the session logger tagged with the player name.
func (c *Client) Logger() *logging.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}

func (c *Client) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	log := c.log
	c.mu.Unlock()
	if from != to {
		log.LogStateChange(from.String(), to.String(), reason)
	}
}

func (c *Client) setUser(u *UserHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
	c.log = c.baseLog.WithPlayer(u.DisplayName)
}

// send performs one transport round trip without any reauthorization.
func (c *Client) send(ctx context.Context, method, url string) (*Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	r, err := c.transport.Do(ctx, transport.Request{Method: method, URL: url})
	if err != nil {
		return nil, err
	}
	return &Response{Status: r.Status, Body: r.Body, Result: protocol.Classify(r.Body)}, nil
}
