package game

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/session"
)

// resourceRewards are message rewards the server credits without a claim.
var resourceRewards = []string{"gas", "mineral"}

// CollectDailyReward claims the dropship reward. Guests and players whose
// login already reported the reward are skipped. It returns true when this
// call claimed the reward; a server reply saying it was already collected is
// not an error.
func (s *Service) CollectDailyReward(ctx context.Context) (bool, error) {
	u, err := s.sess.User()
	if err != nil {
		return false, err
	}
	if !u.Authorized || u.DailyRewardStatus != 0 || s.State().DailyCollected {
		return false, nil
	}

	argument := s.State().LiveOps.DailyRewardArgument
	if argument == "" {
		ops, err := s.GetTodayLiveOps(ctx)
		if err != nil {
			return false, err
		}
		argument = ops.DailyRewardArgument
	}

	resp, err := s.call(ctx, "game.CollectDailyReward", http.MethodPost, protocol.CollectDailyReward, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("dailyRewardStatus", "Box").
			Set("argument", argument).
			Set("accessToken", token)
	})
	if resp != nil && resp.Result.Has(protocol.MarkerAlreadyClaimed) {
		s.update(func(st *RunState) { st.DailyCollected = true })
		s.sess.UpdateUser(func(u *session.UserHandle) { u.DailyRewardStatus = 1 })
		s.log().Info("You have already collected the daily reward from the dropship.")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	user := resp.Result.Root.Find("User")
	s.sess.UpdateUser(func(u *session.UserHandle) {
		u.DailyRewardStatus = 1
		if credits, ok := user.Int("Credits"); ok {
			u.Credits = credits
		}
	})
	s.update(func(st *RunState) { st.DailyCollected = true })
	s.log().Info("You have collected the daily reward from the dropship.")
	return true, nil
}

// ListSystemMessages returns the player's system messages.
func (s *Service) ListSystemMessages(ctx context.Context) ([]Message, error) {
	root, err := s.fetch(ctx, "game.ListSystemMessages", http.MethodGet, protocol.ListSystemMessages, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("fromMessageId", "0").
			Set("take", "10000").
			Set("accessToken", token)
	})
	if err != nil {
		return nil, err
	}
	return parseMessages(root), nil
}

// CollectReward claims the reward attached to messageID.
func (s *Service) CollectReward(ctx context.Context, messageID string) error {
	_, err := s.call(ctx, "game.CollectReward", http.MethodPost, protocol.CollectReward, func(token string) *protocol.Query {
		return s.fresh(protocol.NewQuery().Set("messageId", messageID), token)
	})
	return err
}

// CollectMessages reads the system messages and claims every reward except
// gas and mineral, which the server credits on its own. It returns how many
// claims succeeded; failed claims are logged and skipped.
func (s *Service) CollectMessages(ctx context.Context) (int, error) {
	msgs, err := s.ListSystemMessages(ctx)
	if err != nil {
		return 0, err
	}
	log := s.log()
	claimed := 0
	for _, m := range msgs {
		kind, amount, ok := m.Reward()
		if ok {
			log.Info(m.Text + " " + amount + " " + kind + " is collectable.")
			if lo.Contains(resourceRewards, kind) {
				continue
			}
		} else {
			log.Info(m.Text)
		}
		if err := s.CollectReward(ctx, m.ID); err != nil {
			log.Warn("Failed to collect message reward", "message_id", m.ID, "error", err.Error())
			continue
		}
		claimed++
	}
	s.update(func(st *RunState) { st.MessagesClaimed += claimed })
	return claimed, nil
}

// ListTaskDesigns loads the task catalogue for the current room design
// version, fetching the version first when it is unknown.
func (s *Service) ListTaskDesigns(ctx context.Context) ([]TaskDesign, error) {
	version := s.State().Versions.RoomDesign
	if version == 0 {
		v, err := s.GetLatestVersion(ctx)
		if err != nil {
			return nil, err
		}
		version = v.RoomDesign
	}
	lang := s.sess.Device().LanguageKey()
	root, err := s.fetch(ctx, "game.ListTaskDesigns", http.MethodGet, protocol.ListAllTaskDesigns, func(string) *protocol.Query {
		return protocol.NewQuery().
			Set("languageKey", lang).
			Set("designVersion", strconv.Itoa(version))
	})
	if err != nil {
		return nil, err
	}
	designs := parseTaskDesigns(root)
	s.update(func(st *RunState) { st.TaskDesigns = designs })
	return designs, nil
}

// ListTasks returns the player's task progress.
func (s *Service) ListTasks(ctx context.Context) ([]Task, error) {
	root, err := s.fetch(ctx, "game.ListTasks", http.MethodGet, protocol.ListTasksOfAUser, s.stamped)
	if err != nil {
		return nil, err
	}
	return parseTasks(root), nil
}

// CollectTaskCompletion claims the reward of a finished task.
func (s *Service) CollectTaskCompletion(ctx context.Context, taskDesignID string) error {
	_, err := s.call(ctx, "game.CollectTaskCompletion", http.MethodPost, protocol.CollectTaskCompletion, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("taskDesignId", taskDesignID).
			Set("accessToken", token)
	})
	return err
}

// CollectTaskRewards claims every task whose progress matches its design's
// objective and returns how many claims succeeded.
func (s *Service) CollectTaskRewards(ctx context.Context) (int, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return 0, err
	}
	designs, err := s.ListTaskDesigns(ctx)
	if err != nil {
		return 0, err
	}
	byID := lo.KeyBy(designs, func(d TaskDesign) string { return d.ID })

	log := s.log()
	claimed := 0
	var failed error
	for _, t := range tasks {
		d, ok := byID[t.DesignID]
		if !ok || !t.Collectable(d) {
			continue
		}
		if err := s.CollectTaskCompletion(ctx, t.DesignID); err != nil {
			failed = err
			continue
		}
		claimed++
		log.Info("Collecting reward for objective: " + d.Name + ".")
	}
	s.update(func(st *RunState) { st.TasksClaimed += claimed })
	if failed != nil && claimed == 0 {
		return 0, apperrors.New(apperrors.KindApplication, "game.CollectTaskRewards").
			WithMessage("no task reward could be collected").
			WithCause(failed).
			Silent().
			Build()
	}
	return claimed, nil
}
