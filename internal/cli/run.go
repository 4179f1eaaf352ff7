package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/runner"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

type runOptions struct {
	auth       string
	email      string
	password   string
	guest      bool
	noStarbux  bool
	maxFailure int
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily sequence: starbux, rewards, messages and resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.auth, "auth", "", "Refresh token to log in with (or TACHIKOMA_AUTH)")
	f.StringVar(&o.email, "email", "", "Account email (or TACHIKOMA_EMAIL)")
	f.StringVar(&o.password, "password", "", "Account password (or TACHIKOMA_PASSWORD)")
	f.BoolVar(&o.guest, "guest", false, "Play as a guest without prompting")
	f.BoolVar(&o.noStarbux, "no-starbux", false, "Skip the free starbux loop")
	f.IntVar(&o.maxFailure, "max-starbux-failures", runner.DefaultMaxStarbuxFailures, "Consecutive starbux failures before giving up")
	return cmd
}

func (a *app) run(cmd *cobra.Command, o runOptions) error {
	out := cmd.OutOrStdout()
	dev, err := a.device(lo.CoalesceOrEmpty(o.auth, a.cfg.Credentials.AuthString))
	if err != nil {
		return err
	}

	var creds runner.Credentials
	if !dev.HasRefreshToken() {
		c, err := a.credentials(out, o.email, o.password, o.guest)
		if err != nil {
			return err
		}
		creds = runner.Credentials{Email: c.Email, Password: c.Password}
	}

	svc := a.game(a.session(dev))
	r := runner.New(svc, runner.Options{
		Credentials:        creds,
		SkipStarbux:        o.noStarbux,
		MaxStarbuxFailures: o.maxFailure,
		Logger:             logging.GetGlobalLogger().WithComponent("runner"),
	})
	sum, runErr := r.Run(cmd.Context())
	fmt.Fprintln(out, ui.RenderSummary(sum))
	return runErr
}
