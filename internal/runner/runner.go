// Package runner drives one daily run: authenticate, load the ship, claim the
// free starbux, then walk the scripted sequence of collection steps with a
// heartbeat between them. A failing step is logged and skipped; only a failed
// login stops the run.
package runner

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/game"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/session"
)

// DefaultMaxStarbuxFailures ends the starbux loop after this many failed
// claims in a row.
const DefaultMaxStarbuxFailures = 3

// Credentials select the login branch for a device without a refresh token.
// An empty Email logs in as a guest.
type Credentials struct {
	Email    string
	Password string
}

// Options configure a Runner.
type Options struct {
	Credentials        Credentials
	SkipStarbux        bool
	MaxStarbuxFailures int
	Logger             *logging.Logger
}

// Step is one named action of the daily sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Summary reports what a run did.
type Summary struct {
	Player          string
	Guest           bool
	FreeStarbux     int
	StarbuxMax      int
	Credits         int
	Minerals        int
	Gas             int
	DailyCollected  bool
	MessagesClaimed int
	TasksClaimed    int
	Heartbeats      int
	Failed          []string
	Started         time.Time
	Finished        time.Time
}

// Duration is how long the run took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Runner runs the daily sequence for one session.
type Runner struct {
	sess  *session.Client
	game  *game.Service
	clock clock.Clock
	opts  Options
	log   *logging.Logger

	chain      *apperrors.Chain
	failed     []string
	heartbeats int
}

// New returns a Runner for svc's session.
func New(svc *game.Service, opts Options) *Runner {
	if opts.MaxStarbuxFailures <= 0 {
		opts.MaxStarbuxFailures = DefaultMaxStarbuxFailures
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetGlobalLogger().WithComponent("runner")
	}
	sess := svc.Session()
	return &Runner{
		sess:  sess,
		game:  svc,
		clock: sess.Time().Clock(),
		opts:  opts,
		log:   opts.Logger,
		chain: apperrors.NewChain(opts.Logger),
	}
}

// Authenticate logs in. A device bound to an account logs in on its refresh
// token; otherwise the configured credentials are used, or none for a guest.
func (r *Runner) Authenticate(ctx context.Context) error {
	if r.sess.Device().HasRefreshToken() {
		return r.sess.Login(ctx, "", "")
	}
	if r.opts.Credentials.Email == "" {
		r.log.Info("Logging in as guest")
	}
	return r.sess.Login(ctx, r.opts.Credentials.Email, r.opts.Credentials.Password)
}

// Steps returns the scripted sequence run after the starbux loop.
func (r *Runner) Steps() []Step {
	return []Step{
		{"task rewards", func(ctx context.Context) error {
			_, err := r.game.CollectTaskRewards(ctx)
			return err
		}},
		{"crew", func(ctx context.Context) error {
			_, err := r.game.ListCharacters(ctx)
			return err
		}},
		{"daily reward", func(ctx context.Context) error {
			_, err := r.game.CollectDailyReward(ctx)
			return err
		}},
		{"messages", func(ctx context.Context) error {
			_, err := r.game.CollectMessages(ctx)
			return err
		}},
		{"resources", func(ctx context.Context) error {
			_, err := r.game.CollectAllResources(ctx)
			return err
		}},
		{"summary", func(context.Context) error {
			r.game.InfoBux()
			r.game.ResourceTotals()
			return nil
		}},
	}
}

// Run performs the whole daily sequence. The returned error is non-nil when
// login failed, the context ended, or one or more steps failed; the summary
// is filled in every case.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := r.clock.Now()
	if err := r.Authenticate(ctx); err != nil {
		r.log.Error("Failed to login", "error", err.Error())
		return r.summary(started), err
	}
	r.log = r.opts.Logger.WithPlayer(r.sess.PlayerName())

	r.bootstrap(ctx)
	if !r.opts.SkipStarbux {
		if err := r.grabStarbux(ctx); err != nil {
			return r.summary(started), err
		}
	}
	for _, step := range r.Steps() {
		if err := ctx.Err(); err != nil {
			return r.summary(started), err
		}
		r.heartbeat(ctx)
		r.runStep(ctx, step)
	}

	r.log.Info("Finished...")
	return r.summary(started), r.chain.Combined()
}

// bootstrap loads what later steps read: design versions, live ops and the
// ship. Failures are recorded and the run goes on.
func (r *Runner) bootstrap(ctx context.Context) {
	for _, step := range []Step{
		{"latest version", func(ctx context.Context) error { _, err := r.game.GetLatestVersion(ctx); return err }},
		{"live ops", func(ctx context.Context) error { _, err := r.game.GetTodayLiveOps(ctx); return err }},
		{"ship", func(ctx context.Context) error { _, err := r.game.GetShip(ctx); return err }},
	} {
		r.runStep(ctx, step)
	}
}

// grabStarbux claims free starbux until the daily cap, waiting out the
// cooldown between claims and sending heartbeats while it waits.
func (r *Runner) grabStarbux(ctx context.Context) error {
	failures := 0
	for !r.game.StarbuxDone() {
		if wait := r.game.StarbuxReadyIn(); wait > 0 {
			if err := clock.SleepContext(ctx, r.clock, wait); err != nil {
				return err
			}
			r.heartbeat(ctx)
			continue
		}
		ok, err := r.game.GrabFlyingStarbux(ctx)
		if err != nil {
			failures++
			r.chain.Add("starbux", err)
			if failures >= r.opts.MaxStarbuxFailures {
				r.failed = append(r.failed, "starbux")
				r.log.Warn("Giving up on free starbux", "failures", failures)
				return nil
			}
			continue
		}
		if !ok {
			// No token or no user: nothing more to claim this run.
			return nil
		}
		failures = 0
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) {
	err := r.log.LogOperation(step.Name, func() error { return step.Run(ctx) })
	if err != nil {
		r.failed = append(r.failed, step.Name)
		r.chain.Add(step.Name, err)
	}
}

func (r *Runner) heartbeat(ctx context.Context) {
	before := r.lastHeartbeat()
	if _, err := r.sess.Heartbeat(ctx); err != nil {
		r.chain.Add("heartbeat", err)
		return
	}
	if r.lastHeartbeat().After(before) {
		r.heartbeats++
	}
}

func (r *Runner) lastHeartbeat() time.Time {
	u, err := r.sess.User()
	if err != nil {
		return time.Time{}
	}
	return u.LastHeartbeatAt
}

func (r *Runner) summary(started time.Time) Summary {
	st := r.game.State()
	s := Summary{
		StarbuxMax:      r.game.StarbuxMax(),
		Minerals:        st.Minerals,
		Gas:             st.Gas,
		DailyCollected:  st.DailyCollected,
		MessagesClaimed: st.MessagesClaimed,
		TasksClaimed:    st.TasksClaimed,
		Heartbeats:      r.heartbeats,
		Failed:          lo.Uniq(r.failed),
		Started:         started,
		Finished:        r.clock.Now(),
	}
	if u, err := r.sess.User(); err == nil {
		s.Player = u.DisplayName
		s.Guest = !u.Authorized
		s.FreeStarbux = u.FreeStarbuxToday
		s.Credits = u.Credits
	}
	return s
}
