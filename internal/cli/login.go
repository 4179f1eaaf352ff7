package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tachikoma-bot/tachikoma/internal/device"
	"github.com/tachikoma-bot/tachikoma/internal/session"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Bind this device to an account, or re-authorize its stored refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			dev, err := a.device("")
			if err != nil {
				return err
			}
			var sess *session.Client
			if dev.HasRefreshToken() && email == "" && a.cfg.Credentials.Email == "" {
				sess = a.session(dev)
				if err := sess.AuthorizeRefreshToken(cmd.Context()); err != nil {
					return err
				}
			} else {
				creds, err := a.credentials(out, email, password, false)
				if err != nil {
					return err
				}
				if creds.Email == "" {
					return fmt.Errorf("login needs an account email and password")
				}
				// Authorize on an unbound copy so a rejected login keeps the
				// stored binding.
				st := dev.State()
				st.RefreshToken = ""
				trial := device.Restore(st)
				sess = a.session(trial)
				if err := sess.Login(cmd.Context(), creds.Email, creds.Password); err != nil {
					return err
				}
				if !trial.HasRefreshToken() {
					return fmt.Errorf("server did not issue a refresh token")
				}
				dev.AcquireRefreshToken(trial.RefreshToken())
			}
			if !dev.HasRefreshToken() {
				return fmt.Errorf("server did not issue a refresh token")
			}
			fmt.Fprintln(out, ui.RenderSessionState(sess.State(), sess.PlayerName()))
			fmt.Fprintln(out, ui.RenderStatus("success", "Refresh token stored in "+a.store.Path()))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (or TACHIKOMA_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or TACHIKOMA_PASSWORD)")
	return cmd
}

func newHeartbeatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Log in with the stored device and send one heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			dev, err := a.device(a.cfg.Credentials.AuthString)
			if err != nil {
				return err
			}
			sess := a.session(dev)
			if err := a.login(cmd.Context(), sess, a.cfg.Credentials); err != nil {
				return err
			}
			ok, err := sess.Heartbeat(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, ui.RenderStatus("warning", "Heartbeat was not accepted"))
				return nil
			}
			fmt.Fprintln(out, ui.RenderSessionState(sess.State(), sess.PlayerName()))
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tachikoma %s (%s)\n", a.version, a.buildDate)
		},
	}
}
