package cli

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/cellflow/cellflow/internal/config"
	"github.com/cellflow/cellflow/internal/engine"
	"github.com/cellflow/cellflow/internal/external"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/webhook"
)

// app bundles the wired service components behind one constructor so
// every command opens them the same way.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	fetcher := external.NewFetcher(cfg.BaseURL,
		external.WithHTTPClient(&http.Client{Timeout: cfg.External.Timeout()}),
		external.WithMaxBody(cfg.External.MaxBodyBytes),
		external.WithLogger(logger))
	notifier := webhook.NewNotifier(s,
		webhook.WithHTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout()}),
		webhook.WithLogger(logger))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  s,
		engine: engine.New(s, fetcher, notifier, engine.WithLogger(logger)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
