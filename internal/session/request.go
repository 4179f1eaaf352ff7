package session

import (
	"context"
	"net/url"
	"strings"

	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

// URLFunc builds a request URL around the current access token. It is called
// again with the new token when a request is retried after reauthorization.
type URLFunc func(accessToken string) string

// Request sends one call and applies the reauthorization policy. When the
// body says the access token was not authorized, the session reloads its
// token and reissues the request once with the accessToken parameter
// replaced. The response is returned whatever its application outcome;
// callers interpret error markers themselves.
func (c *Client) Request(ctx context.Context, method, rawURL string) (*Response, error) {
	return c.dispatch(ctx, method, func(token string) string {
		return replaceToken(rawURL, token)
	})
}

// Call is Request for callers that build URLs per token, so checksums bound
// to the token are recomputed on retry.
func (c *Client) Call(ctx context.Context, method string, build URLFunc) (*Response, error) {
	return c.dispatch(ctx, method, build)
}

func (c *Client) dispatch(ctx context.Context, method string, build URLFunc) (*Response, error) {
	token := c.AccessToken()
	resp, err := c.send(ctx, method, build(token))
	if err != nil {
		return nil, err
	}
	if resp.Result.Outcome == protocol.OutcomeErrorMarker && !resp.Result.AuthExpired() {
		c.Logger().Warn("Server reported an error",
			"message", resp.Result.Message,
			"code", resp.Result.Code)
	}
	if !resp.Result.AuthExpired() {
		c.setState(Active, "request")
		return resp, nil
	}

	c.Logger().Info("Attempting to reauthorize access token.")
	if err := c.reauthorize(ctx, token); err != nil {
		return resp, apperrors.New(apperrors.KindAuthExpired, "session.Request").
			WithLogger(c.Logger()).
			WithMessage("reauthorization failed").
			WithCause(err).
			Build()
	}

	retry, err := c.send(ctx, method, build(c.AccessToken()))
	if err != nil {
		return nil, err
	}
	if retry.Result.AuthExpired() {
		return retry, apperrors.New(apperrors.KindAuthExpired, "session.Request").
			WithLogger(c.Logger()).
			WithMessage("access token rejected again after reauthorization").
			Build()
	}
	c.setState(Active, "request after reauthorization")
	return retry, nil
}

// reauthorize reloads the token unless another caller already replaced the
// stale one while this caller waited for the lock.
func (c *Client) reauthorize(ctx context.Context, stale string) error {
	c.reauth.Lock()
	defer c.reauth.Unlock()

	c.mu.Lock()
	if c.accessToken != "" && c.accessToken != stale {
		c.mu.Unlock()
		return nil
	}
	c.authorized = false
	if c.user != nil {
		c.user.Authorized = false
	}
	c.mu.Unlock()
	c.setState(Reauthorizing, "access token not authorized")

	return c.reload(ctx)
}

// QuickReload clears the access token and acquires a new one. It is the only
// path that replaces a held token.
func (c *Client) QuickReload(ctx context.Context) error {
	c.reauth.Lock()
	defer c.reauth.Unlock()
	return c.reload(ctx)
}

func (c *Client) reload(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()

	if err := c.GetAccessToken(ctx); err != nil {
		return err
	}
	c.setState(Active, "reload")
	return nil
}

// replaceToken swaps the accessToken query parameter of raw for token,
// leaving every other byte of the query as it was. raw is returned unchanged
// when token is empty or already in place.
func replaceToken(raw, token string) string {
	if token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	want := "accessToken=" + url.QueryEscape(token)
	changed := false
	parts := strings.Split(u.RawQuery, "&")
	for i, p := range parts {
		if strings.HasPrefix(p, "accessToken=") && p != want {
			parts[i] = want
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
