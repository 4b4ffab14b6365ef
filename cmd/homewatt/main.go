package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/homewatt/homewatt/pkg/collector"
	"github.com/homewatt/homewatt/pkg/config"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/publish"
	"github.com/homewatt/homewatt/pkg/server"
	"github.com/homewatt/homewatt/pkg/simulator"
	"github.com/homewatt/homewatt/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	cfg := config.Configured()
	s := storage.Configured()
	p := publish.Configured()

	// init server
	srv := server.Configured(s, cfg)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	sim, err := simulator.New(simulator.DefaultProfiles(), cfg.Schedule, simulator.Options{
		Interval: cfg.TickInterval,
		Seed:     cfg.Seed,
		Perturb:  cfg.Perturb,
		Location: cfg.Location,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid device profiles", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "simulator configured", slog.Uint64("seed", sim.Seed()), slog.Int("devices", len(sim.Devices())))

	// publishers are optional, a sink that is down shouldn't stop collection
	pubs, err := publish.Open(ctx, *p)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to open publishers, continuing without them", "error", err)
		pubs = nil
	}
	defer func() {
		if err := pubs.Close(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to close publishers", "error", err)
		}
	}()

	col := collector.New(sim, s, pubs, *cfg)
	srv.SetCollector(col)

	collectorErr := make(chan error, 1)
	go func() {
		err := col.Run(ctx)
		if err != nil {
			cancel()
		}
		collectorErr <- err
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		cancel()
		<-collectorErr
		os.Exit(1)
	}
	if err := <-collectorErr; err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "collector failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
