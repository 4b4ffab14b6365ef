// Package collector drives the simulator and persists what it produces.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/homewatt/homewatt/pkg/config"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
)

// Source produces one reading per device per tick.
type Source interface {
	Tick(now time.Time) []types.Reading
	Devices() []types.Device
}

// Publisher receives every batch after it has been stored.
type Publisher interface {
	Publish(ctx context.Context, readings []types.Reading) error
}

// Status describes the collector's recent progress.
type Status struct {
	LastTick     time.Time `json:"last_tick,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	LastCleanup  time.Time `json:"last_cleanup,omitzero"`
	Inserted     int64     `json:"inserted"`
	FailedWrites int64     `json:"failed_writes"`
}

// Collector is the only writer of readings.
type Collector struct {
	source    Source
	db        storage.Database
	publisher Publisher
	cfg       config.Config

	now func() time.Time

	mu     sync.Mutex
	status Status
}

// New returns a Collector. publisher may be nil.
func New(source Source, db storage.Database, publisher Publisher, cfg config.Config) *Collector {
	return &Collector{
		source:    source,
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Status returns a snapshot of the collector's progress.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Register upserts every simulated device into the registry.
func (c *Collector) Register(ctx context.Context) error {
	for _, d := range c.source.Devices() {
		if err := c.db.UpsertDevice(ctx, d); err != nil {
			return fmt.Errorf("failed to register device %s: %w", d.ID, err)
		}
	}
	return nil
}

// RunOnce takes one tick at now and stores it. Readings of a tick whose
// write fails are dropped.
func (c *Collector) RunOnce(ctx context.Context, now time.Time) error {
	readings := c.source.Tick(now)
	if err := c.db.InsertReadings(ctx, readings); err != nil {
		c.mu.Lock()
		c.status.LastError = err.Error()
		c.status.FailedWrites++
		c.mu.Unlock()
		return fmt.Errorf("failed to insert readings: %w", err)
	}

	c.mu.Lock()
	c.status.LastTick = now
	c.status.LastError = ""
	c.status.Inserted += int64(len(readings))
	c.mu.Unlock()

	if c.publisher != nil {
		// publish failures are already logged per publisher
		_ = c.publisher.Publish(ctx, readings)
	}

	c.cleanup(ctx, now)
	return nil
}

func (c *Collector) cleanup(ctx context.Context, now time.Time) {
	if c.cfg.Retention <= 0 || c.cfg.CleanupInterval <= 0 {
		return
	}
	c.mu.Lock()
	due := now.Sub(c.status.LastCleanup) >= c.cfg.CleanupInterval
	if due {
		c.status.LastCleanup = now
	}
	c.mu.Unlock()
	if !due {
		return
	}

	cutoff := now.Add(-c.cfg.Retention)
	n, err := c.db.DeleteReadingsBefore(ctx, cutoff)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to delete old readings", slog.Time("cutoff", cutoff), slog.Any("error", err))
		return
	}
	if n > 0 {
		log.Ctx(ctx).InfoContext(ctx, "deleted old readings", slog.Int("count", n), slog.Time("cutoff", cutoff))
	}
}

// Run registers devices and then ticks every TickInterval until ctx is done.
// A failed write is followed by RetryBackoff before the next tick.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Register(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "collector started",
		slog.Duration("interval", c.cfg.TickInterval),
		slog.Int("devices", len(c.source.Devices())),
	)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			break
		}
		if err := c.RunOnce(ctx, c.now()); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "collector tick failed", slog.Any("error", err), slog.Duration("backoff", c.cfg.RetryBackoff))
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	log.Ctx(ctx).InfoContext(ctx, "collector stopped")
	return nil
}
