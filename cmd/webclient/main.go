package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/EcommerceGo/webclient/internal/app"
	"github.com/utafrali/EcommerceGo/webclient/internal/cli"
	"github.com/utafrali/EcommerceGo/webclient/internal/config"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so command output stays clean on stdout.
	log := logger.NewWithWriter("webclient", cfg.LogLevel, os.Stderr)
	slog.SetDefault(log)

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			log.Error("shutdown error", slog.String("error", err.Error()))
		}
	}()

	c := cli.New(cli.Deps{
		Session:   application.Shell,
		Uploader:  application.Media,
		Optimizer: application.Optimizer,
		Health:    application.Health,
		Tokens:    application.Store,
	}, os.Stdin, os.Stdout)

	return c.Run(ctx, os.Args[1:])
}
