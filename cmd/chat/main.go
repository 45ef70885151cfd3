package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"softspace/internal/client"
	"softspace/internal/client/localstate"
	"softspace/internal/config"
	"softspace/internal/tui"

	"go.uber.org/zap"
)

func main() {
	conversationID := flag.String("conversation", "", "open this conversation instead of the last one")
	flag.Parse()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// the terminal belongs to the UI, so logs go to a file
	logger, err := newFileLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := localstate.OpenSQLite(ctx, cfg.StatePath)
	if err != nil {
		logger.Fatal("failed to open local state", zap.String("path", cfg.StatePath), zap.Error(err))
	}
	defer state.Close()

	nav := client.NewMemoryNavigator(client.RouteChat, client.RoutePricing, client.RouteAccount)
	notices := tui.NewNotifier()

	app := client.NewApp(client.Deps{
		Backend:   client.NewHTTPBackend(cfg.APIURL, nil, logger),
		State:     state,
		Navigator: nav,
		Notifier:  notices,
		Logger:    logger,

		GuestsDisabled: !cfg.AllowGuest,
	})

	logger.Info("chat client starting", zap.String("api_url", cfg.APIURL))
	if err := tui.Run(ctx, tui.New(ctx, app, nav, notices, *conversationID)); err != nil {
		logger.Error("chat client stopped", zap.Error(err))
		fmt.Fprintf(os.Stderr, "softspace: %v\n", err)
		os.Exit(1)
	}
}

func newFileLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	return zcfg.Build()
}
