package game

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/session"
)

// StarbuxMax returns the daily free starbux cap.
func (s *Service) StarbuxMax() int { return s.max }

// StarbuxDone reports whether today's free starbux are all collected.
func (s *Service) StarbuxDone() bool {
	u, err := s.sess.User()
	return err == nil && u.FreeStarbuxToday >= s.max
}

// StarbuxReadyIn returns how long the claim cooldown still runs, zero when a
// claim may be made now.
func (s *Service) StarbuxReadyIn() time.Duration {
	last := s.State().LastStarbuxAt
	if last.IsZero() {
		return 0
	}
	return max(0, s.cooldown-s.clock.Now().Sub(last))
}

// AddStarbux claims quantity free starbux and returns the user's new free
// total for today. A reply without a UserService payload is malformed.
func (s *Service) AddStarbux(ctx context.Context, quantity int) (int, error) {
	const op = "game.AddStarbux"
	root, err := s.fetch(ctx, op, http.MethodPost, protocol.AddStarbux, func(token string) *protocol.Query {
		return s.fresh(protocol.NewQuery().Set("quantity", strconv.Itoa(quantity)), token)
	})
	if err != nil {
		return 0, err
	}
	total, ok := s.adoptStarbux(root.Find("User"))
	if !ok {
		return 0, apperrors.New(apperrors.KindMalformed, op).
			WithLogger(s.log()).
			WithMessage("starbux reply has no FreeStarbuxReceivedToday").
			Build()
	}
	return total, nil
}

// GrabFlyingStarbux claims a random amount of free starbux, at most five and
// never past the daily cap, once the cooldown since the last claim has run
// out. A failed claim does not start the cooldown. It returns false without calling the server while the cap is reached,
// the cooldown is running or no access token is held. A reply without a
// payload triggers a token reload.
func (s *Service) GrabFlyingStarbux(ctx context.Context) (bool, error) {
	u, err := s.sess.User()
	if err != nil || s.sess.AccessToken() == "" {
		return false, nil
	}
	today := u.FreeStarbuxToday
	if today >= s.max {
		s.log().Info("You have collected a total of " + strconv.Itoa(today) + " starbux today.")
		return false, nil
	}
	if s.StarbuxReadyIn() > 0 {
		return false, nil
	}
	now := s.clock.Now()

	quantity := s.intn(min(5, s.max-today)) + 1
	s.log().Debug("Grabbing flying starbux", "free_today", today, "quantity", quantity)

	total, err := s.AddStarbux(ctx, quantity)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindMalformed {
			if rerr := s.sess.QuickReload(ctx); rerr != nil {
				s.log().Warn("Reload after empty starbux reply failed", "error", rerr.Error())
			}
		}
		return false, err
	}
	// Only a successful claim starts the cooldown.
	s.update(func(st *RunState) { st.LastStarbuxAt = now })
	s.log().Info("You have collected a total of " + strconv.Itoa(total) + " starbux today.")
	return true, nil
}

// adoptStarbux copies the free starbux total and balance from a User element
// onto the session user.
func (s *Service) adoptStarbux(node *protocol.Node) (int, bool) {
	free, ok := node.Int("FreeStarbuxReceivedToday")
	if !ok {
		return 0, false
	}
	credits, hasCredits := node.Int("Credits")
	s.sess.UpdateUser(func(u *session.UserHandle) {
		u.FreeStarbuxToday = free
		if hasCredits {
			u.Credits = credits
		}
	})
	return free, true
}
