package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

type dumpOptions struct {
	style     string
	formatter string
	noToken   bool
	raw       bool
}

func newDumpCmd(a *app) *cobra.Command {
	var o dumpOptions
	cmd := &cobra.Command{
		Use:   "dump <Service/Method> [key=value ...]",
		Short: "Send one authenticated GET and print the highlighted XML reply",
		Example: "  tachikoma dump ShipService/GetShipByUserId userId=123\n" +
			"  tachikoma dump SettingService/GetLatestVersion3 languageKey=en --no-token",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dump(cmd, args, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.style, "style", "monokai", "Chroma style for the XML")
	f.StringVar(&o.formatter, "formatter", "", "Chroma formatter (default terminal256 on a terminal, plain otherwise)")
	f.BoolVar(&o.noToken, "no-token", false, "Do not append the access token")
	f.BoolVar(&o.raw, "raw", false, "Print the body as received")
	return cmd
}

func (a *app) dump(cmd *cobra.Command, args []string, o dumpOptions) error {
	ep, err := protocol.ParseEndpoint(args[0])
	if err != nil {
		return err
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	dev, err := a.device(a.cfg.Credentials.AuthString)
	if err != nil {
		return err
	}
	sess := a.session(dev)
	if err := a.login(cmd.Context(), sess, a.cfg.Credentials); err != nil {
		return err
	}

	resp, err := sess.Call(cmd.Context(), http.MethodGet, func(token string) string {
		q := protocol.NewQuery()
		for _, p := range params {
			q.Set(p[0], p[1])
		}
		if !o.noToken {
			q.Set("accessToken", token)
		}
		return ep.URL(sess.BaseURL(), q)
	})
	if err != nil {
		return err
	}

	body := string(resp.Body)
	if !o.raw {
		if indented, err := ui.Indent(resp.Body); err == nil {
			body = indented
		}
	}
	formatter := o.formatter
	if formatter == "" {
		formatter = "noop"
		if a.isTerminal() {
			formatter = "terminal256"
		}
	}
	highlighted, err := ui.NewXMLHighlighter(o.style, formatter).Highlight(body)
	if err != nil {
		a.log.Debug("Highlighting failed", "error", err.Error())
	}
	fmt.Fprintln(cmd.OutOrStdout(), highlighted)
	return nil
}

// parseParams reads key=value arguments in order.
func parseParams(args []string) ([][2]string, error) {
	params := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter must look like key=value, got %q", arg)
		}
		params = append(params, [2]string{key, value})
	}
	return params, nil
}
