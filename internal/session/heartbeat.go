package session

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

// Heartbeat tells the server the session is alive. Calls within the
// heartbeat interval of the last success are no-ops reporting success. A
// failed heartbeat leaves the last success time untouched and reloads the
// access token.
func (c *Client) Heartbeat(ctx context.Context) (bool, error) {
	const op = "session.Heartbeat"

	now := c.time.ValidDateTime()
	if u, err := c.User(); err == nil && now.Sub(u.LastHeartbeatAt) < c.heartbeatInterval {
		return true, nil
	}

	if c.AccessToken() == "" {
		if err := c.QuickReload(ctx); err != nil {
			return false, err
		}
	}

	token := c.AccessToken()
	ts, ticks := c.time.Stamp()
	q := protocol.NewQuery().
		Set("clientDateTime", ts).
		Set("checksum", c.checksum.Freshness(ticks, token)).
		Set("accessToken", token)

	resp, err := c.send(ctx, http.MethodPost, protocol.HeartBeat.URL(c.baseURL, q))
	if err == nil {
		hb := resp.Result.Root.Find("HeartBeat")
		if resp.Result.OK() && resp.Result.Root.Name == "UserService" && hb.Bool("success") {
			c.markHeartbeat(now)
			c.Logger().Info("Successful sent heartbeat.")
			return true, nil
		}
		err = apperrors.New(apperrors.KindApplication, op).
			WithLogger(c.Logger()).
			WithCode(resp.Result.Code).
			WithMessage("heartbeat not accepted: %s", heartbeatReason(resp)).
			Build()
	}

	if rerr := c.QuickReload(ctx); rerr != nil {
		c.Logger().Warn("Reload after failed heartbeat failed", "error", rerr.Error())
	}
	return false, err
}

func heartbeatReason(resp *Response) string {
	switch {
	case resp.Result.Message != "":
		return resp.Result.Message
	case resp.Status != http.StatusOK:
		return "HTTP " + strconv.Itoa(resp.Status)
	default:
		return resp.Result.Outcome.String()
	}
}
