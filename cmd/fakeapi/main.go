// Command fakeapi serves the in-process game API imitation on a local port so
// tachikoma can be pointed at it with TACHIKOMA_BASE_URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tachikoma-bot/tachikoma/internal/fakeapi"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr     string
		accounts []string
		verify   bool
		reload   bool
	)
	cmd := &cobra.Command{
		Use:          "fakeapi",
		Short:        "Serve a local imitation of the game API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.GetGlobalLogger().WithComponent("fakeapi")
			fake := fakeapi.New(fakeapi.Options{
				VerifyChecksums: verify,
				RequireReload:   reload,
				Logger:          log,
			})
			for _, spec := range accounts {
				parts := strings.SplitN(spec, ":", 3)
				if len(parts) != 3 {
					return fmt.Errorf("account must look like email:password:name, got %q", spec)
				}
				a := fake.AddAccount(parts[0], parts[1], parts[2])
				fmt.Fprintf(cmd.OutOrStdout(), "account %s (user %s): TACHIKOMA_AUTH=%s\n", a.Email, a.UserID, a.RefreshToken)
			}
			return serve(cmd.Context(), addr, fake, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "Account as email:password:name (repeatable)")
	cmd.Flags().BoolVar(&verify, "verify-checksums", true, "Reject requests with wrong checksums")
	cmd.Flags().BoolVar(&reload, "require-reload", false, "Ask clients to reload after a credential login")
	return cmd
}

func serve(ctx context.Context, addr string, h http.Handler, log *logging.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("Fake API listening", "addr", "http://"+addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
