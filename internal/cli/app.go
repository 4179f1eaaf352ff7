package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tachikoma-bot/tachikoma/internal/checksum"
	"github.com/tachikoma-bot/tachikoma/internal/clock"
	"github.com/tachikoma-bot/tachikoma/internal/config"
	"github.com/tachikoma-bot/tachikoma/internal/device"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/game"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/session"
	"github.com/tachikoma-bot/tachikoma/internal/transport"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

type globalOptions struct {
	configPath string
	dataDir    string
	envFile    string
	profile    string
	verbose    bool
}

// app carries what every command needs once setup has run.
type app struct {
	version   string
	buildDate string
	opts      globalOptions

	cfg   *config.Config
	store *config.DeviceStore
	log   *logging.Logger

	// Replaced in tests.
	logOutput  io.Writer
	clock      clock.Clock
	isTerminal func() bool
	prompt     func(out io.Writer) (ui.LoginChoice, error)
}

func newApp(version, buildDate string) *app {
	return &app{
		version:    version,
		buildDate:  buildDate,
		clock:      clock.System{},
		isTerminal: stdinIsTerminal,
		prompt:     promptLogin,
	}
}

// setup loads .env and the configuration, starts logging and opens the
// device store.
func (a *app) setup() error {
	if err := config.LoadDotEnv(a.opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return apperrors.New(apperrors.KindConfiguration, "cli.setup").
			WithMessage("failed to load configuration").
			WithCause(err).
			Build()
	}
	if a.opts.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	if a.logOutput != nil {
		logging.SetGlobalLogger(logging.NewWithWriter(a.logOutput, cfg.LoggingConfig()))
	} else if err := logging.InitGlobalLogger(cfg.LoggingConfig()); err != nil {
		return err
	}
	a.log = logging.GetCLILogger()

	store, err := config.OpenDeviceStore(a.opts.dataDir)
	if err != nil {
		return apperrors.New(apperrors.KindConfiguration, "cli.setup").
			WithLogger(a.log).
			WithMessage("failed to open device store").
			WithCause(err).
			Build()
	}
	a.store = store
	return nil
}

// close releases the log file opened by setup. It is safe to call twice.
func (a *app) close() error {
	if a.log == nil {
		return nil
	}
	a.log = nil
	return logging.GetGlobalLogger().Close()
}

// device loads the profile's device, registering a new one on first use. A
// non-empty authString replaces the stored refresh token.
func (a *app) device(authString string) (*device.Device, error) {
	state, ok, err := a.store.LoadDevice(a.opts.profile)
	if err != nil {
		return nil, err
	}
	var dev *device.Device
	if ok {
		dev = device.Restore(state)
	} else {
		dev = device.New(a.cfg.LanguageKey, "").WithType(a.cfg.DeviceType)
		if err := a.store.StoreDevice(a.opts.profile, dev.State()); err != nil {
			return nil, err
		}
		a.log.Info("Registered new device", "profile", a.opts.profile, "device", dev.Key())
	}
	dev.WithPersister(a.store.Profile(a.opts.profile))

	if auth := strings.TrimSpace(authString); auth != "" && auth != dev.RefreshToken() {
		dev.AcquireRefreshToken(auth)
	}
	return dev, nil
}

// session builds a session client for dev from the configuration.
func (a *app) session(dev *device.Device) *session.Client {
	cfg := a.cfg
	tr := transport.New(transport.Options{
		Timeout: cfg.Timeout,
		Headers: cfg.Headers,
		Retry: transport.RetryPolicy{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			BackoffFactor: cfg.Retry.BackoffFactor,
			MaxBackoff:    cfg.Retry.MaxBackoff,
			Statuses:      cfg.Retry.Statuses,
		},
		Limiter: transport.NewRateLimiter(cfg.RateLimit.CallsPerMinute, cfg.RateLimit.Period, a.clock),
		Clock:   a.clock,
	})
	return session.New(dev, session.Options{
		BaseURL:           cfg.BaseURL,
		Transport:         tr,
		Checksum:          checksum.NewEngine(cfg.Checksum.Key, cfg.Checksum.Salt),
		Time:              clock.NewSource(a.clock, cfg.ClockSkew),
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
}

func (a *app) game(sess *session.Client) *game.Service {
	return game.New(sess, game.Options{
		StarbuxMax:      a.cfg.Starbux.Max,
		StarbuxCooldown: a.cfg.Starbux.Cooldown,
	})
}

// credentials resolves the login for a device without a refresh token:
// explicit flags first, then the environment, then the interactive prompt
// when stdin is a terminal. Otherwise the session is a guest.
func (a *app) credentials(out io.Writer, email, password string, guest bool) (config.Credentials, error) {
	if guest {
		return config.Credentials{}, nil
	}
	creds := a.cfg.Credentials
	if email != "" {
		creds.Email, creds.Password = email, password
	}
	if creds.Email != "" || !a.isTerminal() {
		return creds, nil
	}

	choice, err := a.prompt(out)
	if err != nil {
		return config.Credentials{}, err
	}
	if choice.Cancelled {
		return config.Credentials{}, fmt.Errorf("login cancelled")
	}
	return config.Credentials{Email: choice.Email, Password: choice.Password}, nil
}

// login authenticates sess the way the driver does.
func (a *app) login(ctx context.Context, sess *session.Client, creds config.Credentials) error {
	if sess.Device().HasRefreshToken() {
		return sess.Login(ctx, "", "")
	}
	return sess.Login(ctx, creds.Email, creds.Password)
}
