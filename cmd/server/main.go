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

	"agency-tracker/internal/api"
	"agency-tracker/internal/config"
	"agency-tracker/internal/db"
	"agency-tracker/internal/logging"
	"agency-tracker/pkg/changefeed"
	"agency-tracker/pkg/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("TRACKER_CONFIG"))
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.File, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure tables exist
	store, err := db.OpenAndMigrate(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	defer store.Close()

	feed := changefeed.NewBus()
	tr := tracker.New(store, logger, tracker.WithFeed(feed))
	server := api.New(tr, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Sync.Interval > 0 {
		go tr.RunSweeper(ctx, cfg.Sync.Interval)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Msg("tracker listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
