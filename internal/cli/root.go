// Package cli builds the tachikoma command tree.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tachikoma-bot/tachikoma/internal/config"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context, version, buildDate string) error {
	a := newApp(version, buildDate)
	return a.execute(ctx, newRootCmd(a))
}

// execute runs root and releases the log file whether or not the command
// failed.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tachikoma",
		Short:         "Daily session bot for the Pixel Starships API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}

	defaultConfig, _ := config.DefaultPath()
	defaultData, _ := config.DataDir()
	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", defaultConfig, "Configuration file")
	flags.StringVar(&a.opts.dataDir, "data-dir", defaultData, "Directory holding device state")
	flags.StringVar(&a.opts.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	flags.StringVar(&a.opts.profile, "profile", "default", "Device profile to use")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(newVersionCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newHeartbeatCmd(a))
	root.AddCommand(newDumpCmd(a))
	return root
}

// stdinIsTerminal reports whether an interactive prompt can be shown.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func promptLogin(out io.Writer) (ui.LoginChoice, error) {
	return ui.RunLoginPrompt(os.Stdin, out)
}
