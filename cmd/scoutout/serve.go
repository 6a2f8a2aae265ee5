package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"scoutout/internal/cfg"
	"scoutout/internal/common"
	"scoutout/internal/geo"
	"scoutout/internal/server"
	"scoutout/internal/storage"
)

const serverShutdownWait = 10 * time.Second

var (
	portFlag = &cli.StringFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (overrides " + common.EnvServerPort + ")",
	}

	serveCmd = &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			portFlag,
		},
		Action: cmdServe,
	}
)

func cmdServe(ctx context.Context, cmd *cli.Command) error {
	a := getApp(ctx)

	port := a.settings.ServerPort
	if p := cmd.String(portFlag.Name); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < common.MinServerPort || n > common.MaxServerPort {
			return fmt.Errorf("invalid port %q", p)
		}
		port = n
	}

	history, err := openHistory(ctx, a.settings)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	// warm the model so the first request does not pay for training
	if _, _, err := a.models.EnsureModel(ctx); err != nil {
		return err
	}

	cities, err := geo.LoadCities(a.settings.CitiesPath)
	if err != nil {
		log.Warn().Err(err).Str("file", a.settings.CitiesPath).Msg("Cities unavailable, nearby search disabled")
	}

	srv := server.New(server.Options{
		Port:         port,
		Engine:       a.engine,
		Models:       a.models,
		History:      history,
		Geocoder:     geo.NewGeocoder(a.settings.GeocoderURL, a.settings.GeocoderUserAgent, a.settings.GeocoderTimeout, a.mw),
		Cities:       cities,
		Metrics:      a.mw,
		Gatherer:     a.registry,
		DefaultYears: a.settings.TimelineYears,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server")
	}
	return nil
}

// openHistory opens the configured history backend; the "none" driver
// returns nil.
func openHistory(ctx context.Context, s cfg.Settings) (storage.History, error) {
	switch s.HistoryDriver {
	case common.HistoryDriverBolt:
		store, err := storage.NewBoltStore(s.DataPath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", s.DataPath).Msg("Prediction history on BoltDB")
		return store, nil
	case common.HistoryDriverPostgres:
		store, err := storage.NewPostgresStore(ctx, s.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Prediction history on PostgreSQL")
		return store, nil
	case common.HistoryDriverNone:
		log.Info().Msg("Prediction history disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", s.HistoryDriver)
	}
}
