package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/config"
	"github.com/DoyleJ11/seetheplay/internal/dashboard"
	"github.com/DoyleJ11/seetheplay/internal/directory"
	"github.com/DoyleJ11/seetheplay/internal/httpapi"
	"github.com/DoyleJ11/seetheplay/internal/hub"
	"github.com/DoyleJ11/seetheplay/internal/logging"
	"github.com/DoyleJ11/seetheplay/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	log := logger.Sugar()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := directory.NewHTTPClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)

	var store directory.Store
	if cfg.DatabaseURL != "" {
		sc, err := directory.OpenSQLCatalog(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer sc.Close()
		store = sc
		log.Infow("sql catalog enabled")
	}
	catalog := directory.NewCatalog(api, store, logger)

	deps := dashboard.Deps{
		StreamURL:        cfg.StreamURL,
		Dialer:           stream.WebsocketDialer{DialTimeout: cfg.StreamDialTimeout},
		WriteTimeout:     cfg.StreamWriteTimeout,
		Clock:            clockwork.NewRealClock(),
		ComposingTimeout: cfg.ComposingTimeout,
		Remote:           api,
		Forecasts:        catalog,
		FetchConcurrency: cfg.FetchConcurrency,
		BreakerTimeout:   cfg.BreakerTimeout,
	}

	h := hub.NewHub(ctx, func(ctx context.Context, code string) *dashboard.Dashboard {
		return dashboard.New(ctx, code, deps, logger)
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, catalog, httpapi.Options{
		ConnectTimeout: cfg.StreamDialTimeout,
		SnapshotBuffer: cfg.SnapshotBuffer,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr, "stream_url", cfg.StreamURL, "env", cfg.Env)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}

	select {
	case <-h.Done():
	case <-shutdownCtx.Done():
		log.Warnw("hub did not stop in time")
	}
	return nil
}
