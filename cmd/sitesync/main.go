package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emgroup/sitesync/internal/app"
	"github.com/emgroup/sitesync/internal/cli"
	"github.com/emgroup/sitesync/internal/cli/formatter"
	"github.com/emgroup/sitesync/internal/config"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelWarn
	if cfg.Log.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	formatter.SetPlain(!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	return cli.NewRootCmd(&cli.App{Sessions: rt}).ExecuteContext(ctx)
}
