package session

import (
	"context"
	"net/http"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

// GetAccessToken performs DeviceLogin when no access token is held. On any
// failure the token is reset to the empty sentinel and an error is returned;
// the session stays usable and the call may be repeated.
func (c *Client) GetAccessToken(ctx context.Context) error {
	if c.AccessToken() != "" {
		return nil
	}
	const op = "session.GetAccessToken"

	dev := c.device
	cs := c.checksum.CreateDevice(dev.Key(), dev.Type())
	c.mu.Lock()
	c.lastChecksum = cs
	c.mu.Unlock()

	q := protocol.NewQuery().
		Set("deviceKey", dev.Key()).
		Set("advertisingKey", "").
		Set("isJailBroken", "False").
		Set("checksum", cs).
		Set("deviceType", "DeviceType"+dev.Type()).
		Set("signal", "False").
		Set("languageKey", dev.LanguageKey()).
		Set("refreshToken", dev.RefreshToken())

	resp, err := c.send(ctx, http.MethodPost, protocol.DeviceLogin.URL(c.baseURL, q))
	if err != nil {
		c.clearToken()
		return err
	}

	token, hasToken := protocol.Extract(resp.Result.Raw, "accessToken")
	switch {
	case resp.Status != http.StatusOK:
		c.clearToken()
		return apperrors.New(apperrors.KindApplication, op).
			WithLogger(c.Logger()).
			WithStatus(resp.Status).
			WithMessage("device login returned HTTP %d", resp.Status).
			Build()
	case resp.Result.Outcome == protocol.OutcomeErrorMarker:
		c.clearToken()
		return apperrors.New(apperrors.KindApplication, op).
			WithLogger(c.Logger()).
			WithCode(resp.Result.Code).
			WithMessage("device login rejected: %s", resp.Result.Message).
			Build()
	case !hasToken || token == "":
		c.clearToken()
		return apperrors.New(apperrors.KindMalformed, op).
			WithLogger(c.Logger()).
			WithMessage("device login response carries no access token").
			WithContext("body", truncate(resp.Result.Raw, 200)).
			Build()
	}

	user, err := c.ParseUserLoginData(resp.Result)
	if err != nil {
		c.clearToken()
		return err
	}

	c.mu.Lock()
	c.accessToken = token
	c.authorized = true
	c.mu.Unlock()
	c.setUser(user)
	c.setState(TokenAcquired, "device login")
	c.Logger().Info("Authenticated...")
	return nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.authorized = false
	c.mu.Unlock()
	c.setState(Unauthenticated, "access token cleared")
}

// Login completes the handshake. A device already bound to an account, or a
// call without an email, succeeds on the access token alone. Otherwise the
// credentials are authorized, the issued refresh token is stored on the
// device, and the token is reloaded when the server asks for it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	const op = "session.Login"

	if err := c.GetAccessToken(ctx); err != nil {
		return apperrors.AsLoginRejected(err, op)
	}
	token := c.AccessToken()
	if token == "" {
		return apperrors.New(apperrors.KindLoginRejected, op).
			WithLogger(c.Logger()).
			WithMessage("no access token after device login").
			Build()
	}

	if c.device.HasRefreshToken() {
		c.setState(LoggedIn, "refresh token")
		return nil
	}
	if email == "" {
		c.setState(LoggedIn, "guest")
		return nil
	}

	ts := c.time.Timestamp()
	cs := c.checksum.EmailAuthorize(c.device.Key(), email, ts, token, c.checksum.SaltValue())
	c.mu.Lock()
	c.lastChecksum = cs
	c.mu.Unlock()

	q := protocol.NewQuery().
		Set("clientDateTime", ts).
		Set("checksum", cs).
		Set("deviceKey", c.device.Key()).
		Set("email", email).
		Set("password", password).
		Set("accessToken", token)

	resp, err := c.send(ctx, http.MethodPost, protocol.EmailPasswordAuthorize.URL(c.baseURL, q))
	if err != nil {
		return err
	}
	if resp.Result.Outcome == protocol.OutcomeErrorMarker || resp.Result.Has(protocol.MarkerErrorMessage+"=") {
		return apperrors.New(apperrors.KindLoginRejected, op).
			WithLogger(c.Logger()).
			WithCode(resp.Result.Code).
			WithMessage("failed to authorize with credentials: %s", resp.Result.Message).
			Build()
	}
	refresh, ok := protocol.Extract(resp.Result.Raw, "refreshToken")
	if !ok || refresh == "" {
		return apperrors.New(apperrors.KindLoginRejected, op).
			WithLogger(c.Logger()).
			WithMessage("authorize response carries no refresh token").
			WithContext("body", truncate(resp.Result.Raw, 200)).
			Build()
	}
	c.device.AcquireRefreshToken(refresh)
	c.adoptLoginData(resp.Result)
	c.UpdateUser(func(u *UserHandle) { u.Authorized = true })

	if resp.Result.Has(protocol.MarkerRequireReload) {
		c.Logger().Info("Server requested a reload after login")
		if err := c.QuickReload(ctx); err != nil {
			return apperrors.AsLoginRejected(err, op)
		}
	}
	c.setState(LoggedIn, "credentials")
	return nil
}

// AuthorizeRefreshToken re-runs UserEmailPasswordAuthorize2 with the device's
// refresh token in place of credentials. The response must echo the account
// email, and any refresh token it carries replaces the stored one.
func (c *Client) AuthorizeRefreshToken(ctx context.Context) error {
	const op = "session.AuthorizeRefreshToken"

	refresh := c.device.RefreshToken()
	if refresh == "" {
		return apperrors.New(apperrors.KindLoginRejected, op).
			WithLogger(c.Logger()).
			WithMessage("device has no refresh token").
			Build()
	}
	if err := c.GetAccessToken(ctx); err != nil {
		return apperrors.AsLoginRejected(err, op)
	}
	token := c.AccessToken()

	email := ""
	if u, err := c.User(); err == nil {
		email = u.Email
	}
	ts := c.time.Timestamp()
	cs := c.checksum.EmailAuthorize(c.device.Key(), email, ts, token, c.checksum.SaltValue())
	c.mu.Lock()
	c.lastChecksum = cs
	c.mu.Unlock()

	q := protocol.NewQuery().
		Set("clientDateTime", ts).
		Set("checksum", cs).
		Set("deviceKey", c.device.Key()).
		Set("accessToken", token).
		Set("refreshToken", refresh)

	resp, err := c.send(ctx, http.MethodPost, protocol.EmailPasswordAuthorize.URL(c.baseURL, q))
	if err != nil {
		return err
	}
	if !resp.Result.Has(protocol.MarkerEmail) {
		return apperrors.New(apperrors.KindLoginRejected, op).
			WithLogger(c.Logger()).
			WithMessage("refresh token authorization rejected").
			WithContext("body", truncate(resp.Result.Raw, 200)).
			Build()
	}
	user, err := c.ParseUserLoginData(resp.Result)
	if err != nil {
		return apperrors.AsLoginRejected(err, op)
	}
	c.setUser(user)
	if rt, ok := protocol.Extract(resp.Result.Raw, "refreshToken"); ok && rt != "" {
		c.device.AcquireRefreshToken(rt)
	}
	c.setState(LoggedIn, "refresh token authorize")
	return nil
}

// adoptLoginData refreshes the user handle when an authorize response
// carries a User element. Shapes without one are ignored.
func (c *Client) adoptLoginData(res protocol.Result) {
	if res.Root.Find("UserLogin").Child("User") == nil {
		return
	}
	if user, err := c.ParseUserLoginData(res); err == nil {
		c.setUser(user)
	}
}

// ParseUserLoginData builds a UserHandle from a UserService login payload.
// Optional attributes default to zero values; a missing UserService root or
// UserLogin element is malformed.
func (c *Client) ParseUserLoginData(res protocol.Result) (*UserHandle, error) {
	const op = "session.ParseUserLoginData"

	if res.Root == nil || res.Root.Name != "UserService" {
		return nil, apperrors.New(apperrors.KindMalformed, op).
			WithLogger(c.Logger()).
			WithMessage("failed to login: no UserService payload").
			Build()
	}
	login := res.Root.Find("UserLogin")
	if login == nil {
		return nil, apperrors.New(apperrors.KindMalformed, op).
			WithLogger(c.Logger()).
			WithMessage("failed to login: no UserLogin element").
			Build()
	}
	userNode := login.Child("User")

	u := &UserHandle{
		ID:         login.AttrOr("UserId", userNode.AttrOr("Id", "")),
		Authorized: c.device.HasRefreshToken(),
		Email:      userNode.AttrOr("Email", ""),
	}
	u.DisplayName = GuestName
	if u.Authorized {
		u.DisplayName = userNode.AttrOr("Name", "")
	}
	if v, ok := userNode.Attr("LastHeartBeatDate"); ok {
		if ts, err := clock.Parse(v); err == nil {
			u.LastHeartbeatAt = ts
		}
	}
	u.Credits, _ = userNode.Int("Credits")
	u.DailyRewardStatus, _ = userNode.Int("DailyRewardStatus")
	u.FreeStarbuxToday, _ = userNode.Int("FreeStarbuxReceivedToday")
	return u, nil
}

// UpdateUser applies fn to the held user handle. It is a no-op before login.
func (c *Client) UpdateUser(fn func(u *UserHandle)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil {
		fn(c.user)
	}
}

// markHeartbeat records a successful heartbeat at t.
func (c *Client) markHeartbeat(t time.Time) {
	c.UpdateUser(func(u *UserHandle) { u.LastHeartbeatAt = t })
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
