package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id      TEXT PRIMARY KEY,
	device_name    TEXT NOT NULL,
	behavior_class TEXT NOT NULL,
	location       TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS readings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id    TEXT NOT NULL,
	device_name  TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	state        TEXT NOT NULL DEFAULT '',
	power_watts  REAL NOT NULL,
	voltage      REAL NOT NULL,
	current_amps REAL NOT NULL,
	energy_kwh   REAL NOT NULL,
	rate         REAL NOT NULL,
	cost         REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings (ts);
CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings (device_id, ts);
`

const readingColumns = `device_id, device_name, ts, state, power_watts, voltage, current_amps, energy_kwh, rate, cost`

// SQLiteProvider implements Database on a local SQLite file. Timestamps are
// stored as unix seconds.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "homewatt.db", "Path of the SQLite database file (\":memory:\" for a throwaway database)")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLite opens and initializes a SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteProvider, error) {
	s := &SQLiteProvider{path: path}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite path cannot be empty")
	}
	return nil
}

// Init opens the database and creates the schema.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	dsn := s.path
	memory := s.path == ":memory:"
	if !memory {
		dsn = "file:" + s.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite (path=%s): %w", s.path, err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertReadings writes all readings in a single transaction.
func (s *SQLiteProvider) InsertReadings(ctx context.Context, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (`+readingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reading insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if r.DeviceID == "" {
			return errors.New("reading missing device id")
		}
		_, err := stmt.ExecContext(ctx,
			r.DeviceID, r.DeviceName, r.Timestamp.Unix(), string(r.State),
			r.PowerWatts, r.Voltage, r.CurrentAmps, r.EnergyKWH, r.Rate, r.Cost,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading (device=%s): %w", r.DeviceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit readings: %w", err)
	}
	return nil
}

func scanReadings(rows *sql.Rows) ([]types.Reading, error) {
	defer rows.Close()
	var readings []types.Reading
	for rows.Next() {
		var r types.Reading
		var ts int64
		var state string
		if err := rows.Scan(
			&r.DeviceID, &r.DeviceName, &ts, &state,
			&r.PowerWatts, &r.Voltage, &r.CurrentAmps, &r.EnergyKWH, &r.Rate, &r.Cost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		r.State = types.OperatingState(state)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return readings, nil
}

// GetReadings retrieves readings within [start, end).
func (s *SQLiteProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + readingColumns + ` FROM readings WHERE ts >= ? AND ts < ?`)
	args := []any{start.Unix(), end.Unix()}
	if deviceID != "" {
		b.WriteString(` AND device_id = ?`)
		args = append(args, deviceID)
	}
	b.WriteString(` ORDER BY ts, id`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	return scanReadings(rows)
}

// GetLatestReadings retrieves the newest reading of every device.
func (s *SQLiteProvider) GetLatestReadings(ctx context.Context) ([]types.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM readings WHERE id IN (
			SELECT MAX(r.id) FROM readings r
			JOIN (SELECT device_id, MAX(ts) AS ts FROM readings GROUP BY device_id) l
				ON r.device_id = l.device_id AND r.ts = l.ts
			GROUP BY r.device_id
		) ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	return scanReadings(rows)
}

// GetLatestReadingTime retrieves the timestamp of the newest reading.
func (s *SQLiteProvider) GetLatestReadingTime(ctx context.Context) (time.Time, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM readings`).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest reading time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// DeleteReadingsBefore removes readings older than cutoff.
func (s *SQLiteProvider) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted readings: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "deleted old readings", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	return int(n), nil
}

// UpsertDevice adds or updates a device in the registry.
func (s *SQLiteProvider) UpsertDevice(ctx context.Context, d types.Device) error {
	if d.ID == "" {
		return errors.New("device id cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_name, behavior_class, location, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			device_name = excluded.device_name,
			behavior_class = excluded.behavior_class,
			location = excluded.location,
			active = excluded.active`,
		d.ID, d.Name, string(d.BehaviorClass), d.Location, d.Active, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.ID, err)
	}
	return nil
}

func scanDevice(scan func(dest ...any) error) (types.Device, error) {
	var d types.Device
	var class string
	if err := scan(&d.ID, &d.Name, &class, &d.Location, &d.Active); err != nil {
		return types.Device{}, err
	}
	d.BehaviorClass = types.BehaviorClass(class)
	return d, nil
}

// GetDevice retrieves a single device.
func (s *SQLiteProvider) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT device_id, device_name, behavior_class, location, active FROM devices WHERE device_id = ?`, deviceID)
	d, err := scanDevice(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.Device{}, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return d, nil
}

// ListDevices retrieves every registered device ordered by id.
func (s *SQLiteProvider) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id, device_name, behavior_class, location, active FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}
