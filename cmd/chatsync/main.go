package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/chatsync/config"
	"github.com/cwrk-planet/chatsync/internal/auth"
	httpserver "github.com/cwrk-planet/chatsync/internal/server/http"
	"github.com/cwrk-planet/chatsync/internal/session"
	transport "github.com/cwrk-planet/chatsync/internal/transport/http"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/logger"
)

func main() {
	// 1) config
	cfg, err := config.Load()
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	// 2) logger
	log := logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chatsync", "version", cfg.Logging.Version, "endpoint", cfg.Endpoint.BaseURL)

	// 3) credential
	creds, err := auth.Load(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		slog.Error("credential load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4) session
	mgr := session.NewManager(session.Options{Config: *cfg, Logger: log})
	defer mgr.Close()

	if _, err := mgr.Replace(ctx, creds); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			slog.Error("session expired, log in again", "err", err)
			os.Exit(1)
		}
		slog.Warn("session started degraded", "err", err)
	}

	// 5) inspection server
	if cfg.HTTP.Addr == "" {
		<-ctx.Done()
		slog.Info("chatsync stopped")
		return
	}

	router := transport.NewRouter(transport.Deps{
		Current: func() (transport.Chat, bool) {
			s, ok := mgr.Current()
			if !ok {
				return nil, false
			}
			return s, true
		},
		Logger: log,
	})
	srv := httpserver.New(httpserver.Config{Addr: cfg.HTTP.Addr}, router, log)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "err", err)
		os.Exit(1)
	}

	slog.Info("chatsync stopped")
}
