package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/homewatt/homewatt/pkg/config"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/simulator"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// batchSize keeps each insert within what every storage provider accepts at once.
const batchSize = storage.MaxTransactionWrites

// seed backfills simulated readings so reports and monthly comparisons have
// history to work with.
func main() {
	cfg := config.Configured()
	s := storage.Configured()
	span := lflag.Duration("seed-duration", 90*24*time.Hour, "How far back to backfill readings")
	interval := lflag.Duration("seed-interval", 5*time.Minute, "Time between backfilled readings")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	sim, err := simulator.New(simulator.DefaultProfiles(), cfg.Schedule, simulator.Options{
		Interval: *interval,
		Seed:     cfg.Seed,
		Perturb:  cfg.Perturb,
		Location: cfg.Location,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid device profiles", slog.Any("error", err))
		os.Exit(1)
	}
	for _, d := range sim.Devices() {
		if err := s.UpsertDevice(ctx, d); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to register device", slog.String("device", d.ID), slog.Any("error", err))
			os.Exit(1)
		}
	}

	now := time.Now().Truncate(*interval)
	start := now.Add(-*span)
	log.Ctx(ctx).InfoContext(ctx, "seeding readings",
		slog.Time("start", start),
		slog.Duration("interval", *interval),
		slog.Uint64("seed", sim.Seed()),
	)

	var (
		batch []types.Reading
		total int
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.InsertReadings(ctx, batch); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to insert readings", slog.Any("error", err))
			os.Exit(1)
		}
		total += len(batch)
		batch = batch[:0]
	}
	for t := start; t.Before(now); t = t.Add(*interval) {
		readings := sim.Tick(t)
		if len(batch)+len(readings) > batchSize {
			flush()
		}
		batch = append(batch, readings...)
	}
	flush()

	log.Ctx(ctx).InfoContext(ctx, "seeding complete", slog.Int("readings", total))
}
