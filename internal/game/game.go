// Package game holds the domain operations layered on the session core. Each
// operation issues one or two templated requests through session.Client.Call,
// so the access token and any token-bound checksum are rebuilt if the session
// has to reauthorize, and parses the attribute tree it needs.
//
// Operations report failure as an error; callers decide whether to skip the
// step or stop.
package game

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/session"
)

const (
	DefaultStarbuxMax      = 10
	DefaultStarbuxCooldown = 180 * time.Second
)

// Options configure a Service. Zero values select defaults.
type Options struct {
	StarbuxMax      int
	StarbuxCooldown time.Duration
	// Intn returns a number in [0, n). Tests pin it.
	Intn   func(n int) int
	Logger *logging.Logger
}

// RunState is what the operations learned during one run.
type RunState struct {
	Versions        Versions
	LiveOps         LiveOps
	Ship            *Ship
	TaskDesigns     []TaskDesign
	LastStarbuxAt   time.Time
	Minerals        int
	Gas             int
	ResourcesAt     time.Time
	DailyCollected  bool
	MessagesClaimed int
	TasksClaimed    int
}

// Service runs domain operations for one session.
type Service struct {
	sess     *session.Client
	clock    clock.Clock
	max      int
	cooldown time.Duration
	intn     func(n int) int
	baseLog  *logging.Logger

	mu    sync.Mutex
	state RunState
}

// New returns a Service bound to sess.
func New(sess *session.Client, opts Options) *Service {
	s := &Service{
		sess:     sess,
		clock:    sess.Time().Clock(),
		max:      opts.StarbuxMax,
		cooldown: opts.StarbuxCooldown,
		intn:     opts.Intn,
		baseLog:  opts.Logger,
	}
	if s.max <= 0 {
		s.max = DefaultStarbuxMax
	}
	if s.cooldown <= 0 {
		s.cooldown = DefaultStarbuxCooldown
	}
	if s.intn == nil {
		s.intn = rand.Intn
	}
	if s.baseLog == nil {
		s.baseLog = logging.GetGameLogger()
	}
	return s
}

// Session returns the underlying session.
func (s *Service) Session() *session.Client { return s.sess }

// State returns a copy of the run state.
func (s *Service) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.TaskDesigns = append([]TaskDesign(nil), s.state.TaskDesigns...)
	return st
}

func (s *Service) update(fn func(st *RunState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

func (s *Service) log() *logging.Logger {
	return s.baseLog.WithPlayer(s.sess.PlayerName())
}

// params builds the query for one attempt of a call.
type params func(token string) *protocol.Query

// call sends ep through the session. An error marker in the body becomes an
// application error; the response is returned either way.
func (s *Service) call(ctx context.Context, op, method string, ep protocol.Endpoint, build params) (*session.Response, error) {
	base := s.sess.BaseURL()
	resp, err := s.sess.Call(ctx, method, func(token string) string {
		return ep.URL(base, build(token))
	})
	if err != nil {
		return resp, err
	}
	if resp.Result.Outcome == protocol.OutcomeErrorMarker {
		return resp, apperrors.New(apperrors.KindApplication, op).
			WithLogger(s.log()).
			WithCode(resp.Result.Code).
			WithMessage("%s", resp.Result.Message).
			Build()
	}
	return resp, nil
}

// payload returns the root of resp when it is named service.
func (s *Service) payload(resp *session.Response, op, service string) (*protocol.Node, error) {
	root := resp.Result.Root
	if root == nil || root.Name != service {
		return nil, apperrors.New(apperrors.KindMalformed, op).
			WithLogger(s.log()).
			WithMessage("%s data unavailable", service).
			WithContext("status", resp.Status).
			Build()
	}
	return root, nil
}

// fetch is call followed by payload.
func (s *Service) fetch(ctx context.Context, op, method string, ep protocol.Endpoint, build params) (*protocol.Node, error) {
	resp, err := s.call(ctx, op, method, ep, build)
	if err != nil {
		return nil, err
	}
	return s.payload(resp, op, ep.Service)
}

// stamped is a query carrying the access token and a fresh clientDateTime.
func (s *Service) stamped(token string) *protocol.Query {
	return protocol.NewQuery().
		Set("accessToken", token).
		Set("clientDateTime", s.sess.Time().Timestamp())
}

// fresh appends clientDateTime, the freshness checksum bound to token and
// the token itself to q. Timestamp and checksum come from one instant.
func (s *Service) fresh(q *protocol.Query, token string) *protocol.Query {
	ts, ticks := s.sess.Time().Stamp()
	return q.
		Set("clientDateTime", ts).
		Set("checksum", s.sess.Checksums().Freshness(ticks, token)).
		Set("accessToken", token)
}

func (s *Service) userID() string {
	u, err := s.sess.User()
	if err != nil {
		return "0"
	}
	return u.ID
}

// GetLatestVersion reads the current design versions.
func (s *Service) GetLatestVersion(ctx context.Context) (Versions, error) {
	dev := s.sess.Device()
	root, err := s.fetch(ctx, "game.GetLatestVersion", http.MethodGet, protocol.GetLatestVersion, func(string) *protocol.Query {
		return protocol.NewQuery().
			Set("languageKey", dev.LanguageKey()).
			Set("deviceType", "DeviceType"+dev.Type())
	})
	if err != nil {
		return Versions{}, err
	}
	v := parseVersions(root)
	s.update(func(st *RunState) { st.Versions = v })
	return v, nil
}

// GetTodayLiveOps reads today's live event, which carries the daily reward
// argument.
func (s *Service) GetTodayLiveOps(ctx context.Context) (LiveOps, error) {
	dev := s.sess.Device()
	root, err := s.fetch(ctx, "game.GetTodayLiveOps", http.MethodGet, protocol.GetTodayLiveOps, func(string) *protocol.Query {
		return protocol.NewQuery().
			Set("languageKey", dev.LanguageKey()).
			Set("deviceType", "DeviceType"+dev.Type())
	})
	if err != nil {
		return LiveOps{}, err
	}
	ops := parseLiveOps(root)
	s.update(func(st *RunState) { st.LiveOps = ops })
	return ops, nil
}

// GetShip loads the player's ship.
func (s *Service) GetShip(ctx context.Context) (*Ship, error) {
	const op = "game.GetShip"
	userID := s.userID()
	root, err := s.fetch(ctx, op, http.MethodGet, protocol.GetShipByUserID, func(token string) *protocol.Query {
		return s.stamped(token).Set("userId", userID)
	})
	if err != nil {
		return nil, err
	}
	ship := parseShip(root)
	if ship == nil {
		return nil, apperrors.New(apperrors.KindMalformed, op).
			WithLogger(s.log()).
			WithMessage("ship payload has no Ship element").
			Build()
	}
	s.update(func(st *RunState) { st.Ship = ship })
	return ship, nil
}

// ListCharacters returns the crew and logs their names and fatigue.
func (s *Service) ListCharacters(ctx context.Context) ([]Character, error) {
	root, err := s.fetch(ctx, "game.ListCharacters", http.MethodGet, protocol.ListAllCharactersOfUser, s.stamped)
	if err != nil {
		return nil, err
	}
	crew := parseCharacters(root)
	log := s.log()
	for _, c := range crew {
		if c.Fatigue > 0 {
			log.Info("Character is fatigued", "character", c.Name, "fatigue", c.Fatigue)
		}
	}
	log.Info("Characters on your ship", "count", len(crew))
	return crew, nil
}

// FinishTraining completes the running training of characterID.
func (s *Service) FinishTraining(ctx context.Context, characterID string) error {
	_, err := s.call(ctx, "game.FinishTraining", http.MethodPost, protocol.FinishTraining, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("characterId", characterID).
			Set("accessToken", token)
	})
	return err
}

// UpgradeRoom starts upgrading roomID into upgradeDesignID.
func (s *Service) UpgradeRoom(ctx context.Context, roomID, upgradeDesignID string) error {
	const op = "game.UpgradeRoom"
	resp, err := s.call(ctx, op, http.MethodPost, protocol.UpgradeRoom, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("roomId", roomID).
			Set("upgradeRoomDesignId", upgradeDesignID).
			Set("accessToken", token)
	})
	if err != nil && resp != nil && resp.Result.Has("concurrent") {
		s.log().Info("You have reached the maximum number of concurrent constructions allowed.")
	}
	return err
}

// AddResearch starts researchDesignID.
func (s *Service) AddResearch(ctx context.Context, researchDesignID string) error {
	_, err := s.call(ctx, "game.AddResearch", http.MethodPost, protocol.AddResearch, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("researchDesignId", researchDesignID).
			Set("researchStartDate", s.sess.Time().Timestamp()).
			Set("accessToken", token)
	})
	return err
}

// CollectAllResources collects every resource room and records the totals.
func (s *Service) CollectAllResources(ctx context.Context) (Resources, error) {
	const op = "game.CollectAllResources"
	root, err := s.fetch(ctx, op, http.MethodPost, protocol.CollectAllResources, func(token string) *protocol.Query {
		return protocol.NewQuery().
			Set("itemType", "None").
			Set("collectDate", s.sess.Time().Timestamp()).
			Set("accessToken", token)
	})
	if err != nil {
		return Resources{}, err
	}

	var res Resources
	for _, item := range root.FindAll("Item") {
		qty, _ := item.Int("Quantity")
		switch item.AttrOr("ItemType", "") {
		case "Mineral":
			res.Minerals = qty
		case "Gas":
			res.Gas = qty
		}
	}
	if credits, ok := root.Find("User").Int("Credits"); ok {
		res.Credits = credits
		s.sess.UpdateUser(func(u *session.UserHandle) { u.Credits = credits })
	} else if u, err := s.sess.User(); err == nil {
		res.Credits = u.Credits
	}
	now := s.clock.Now()
	s.update(func(st *RunState) {
		st.Minerals, st.Gas, st.ResourcesAt = res.Minerals, res.Gas, now
	})
	return res, nil
}

// InfoBux logs the starbux collected today and the balance.
func (s *Service) InfoBux() {
	u, err := s.sess.User()
	if err != nil {
		return
	}
	log := s.log()
	log.Info("A total of " + strconv.Itoa(u.FreeStarbuxToday) + " free starbux was collected today.")
	log.Info("You have a total of " + strconv.Itoa(u.Credits) + " starbux.")
}

// ResourceTotals logs the totals from the last resource collection.
func (s *Service) ResourceTotals() {
	st := s.State()
	log := s.log()
	log.Info("There is a total of " + strconv.Itoa(st.Minerals) + " minerals on your ship.")
	log.Info("There is a total of " + strconv.Itoa(st.Gas) + " gas on your ship.")
}
