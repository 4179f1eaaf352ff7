package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tachikoma-bot/tachikoma/internal/cli"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/ui"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version, buildDate); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError(apperrors.Present(err)))
		stop()
		os.Exit(1)
	}
}
