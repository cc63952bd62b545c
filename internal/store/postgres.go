package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/agrolab/agrologger/internal/agro"
)

// Postgres implements the domain store contracts on top of a PostgreSQL
// database. The weather_daily table carries a unique constraint on
// (field_id, date) and weather_hourly one on (logger_id, field_id,
// timestamp); the insert queries lean on those for their no-op-on-conflict
// semantics. Cumulative GDD is read from the externally maintained
// v_gdd_cumulative view.
type Postgres struct {
	db *sql.DB
}

// ConnectPostgres opens and verifies a connection.
func ConnectPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing connection, mainly for tests.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// RunMigrations executes all .sql files in the directory in lexical order.
func (p *Postgres) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, err := p.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertReading persists a reading; duplicates on (logger_id, field_id,
// timestamp) are silently skipped and reported as false.
func (p *Postgres) InsertReading(ctx context.Context, r *agro.HourlyReading) (bool, error) {
	query := `
		INSERT INTO weather_hourly (
			logger_id, field_id, timestamp,
			temp, humidity, pressure, battery, signal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (logger_id, field_id, timestamp) DO NOTHING
		RETURNING id
	`

	err := p.db.QueryRowContext(ctx, query,
		r.LoggerID, r.FieldID, r.Timestamp,
		r.Temp, r.Humidity, r.Pressure, r.Battery, r.Signal,
	).Scan(&r.ID)

	if err == sql.ErrNoRows {
		// Conflict path: DO NOTHING returns no row.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReadingsForDay returns all readings for a field on the given calendar day,
// newest first with id as tie-break.
func (p *Postgres) ReadingsForDay(ctx context.Context, fieldID int64, day time.Time) ([]agro.HourlyReading, error) {
	query := `
		SELECT id, logger_id, field_id, timestamp,
		       temp, humidity, pressure, battery, signal
		FROM weather_hourly
		WHERE field_id = $1 AND timestamp::date = $2::date
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := p.db.QueryContext(ctx, query, fieldID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []agro.HourlyReading
	for rows.Next() {
		var r agro.HourlyReading
		if err := rows.Scan(
			&r.ID, &r.LoggerID, &r.FieldID, &r.Timestamp,
			&r.Temp, &r.Humidity, &r.Pressure, &r.Battery, &r.Signal,
		); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// LatestReadingForLogger returns the newest reading from a logger, or nil
// when the logger has never reported.
func (p *Postgres) LatestReadingForLogger(ctx context.Context, loggerID int64) (*agro.HourlyReading, error) {
	query := `
		SELECT id, logger_id, field_id, timestamp,
		       temp, humidity, pressure, battery, signal
		FROM weather_hourly
		WHERE logger_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var r agro.HourlyReading
	err := p.db.QueryRowContext(ctx, query, loggerID).Scan(
		&r.ID, &r.LoggerID, &r.FieldID, &r.Timestamp,
		&r.Temp, &r.Humidity, &r.Pressure, &r.Battery, &r.Signal,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertAggregate persists a daily aggregate with insert-once semantics.
func (p *Postgres) InsertAggregate(ctx context.Context, agg *agro.DailyAggregate) (bool, error) {
	query := `
		INSERT INTO weather_daily (
			field_id, date, temp_min, temp_max, temp_avg,
			humidity_avg, pressure_avg, battery, signal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (field_id, date) DO NOTHING
	`

	result, err := p.db.ExecContext(ctx, query,
		agg.FieldID, agg.Date, agg.TempMin, agg.TempMax, agg.TempAvg,
		agg.HumidityAvg, agg.PressureAvg, agg.Battery, agg.Signal,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AggregatesForField returns a field's daily aggregates in date order.
func (p *Postgres) AggregatesForField(ctx context.Context, fieldID int64) ([]agro.DailyAggregate, error) {
	query := `
		SELECT field_id, date, temp_min, temp_max, temp_avg,
		       humidity_avg, pressure_avg, battery, signal
		FROM weather_daily
		WHERE field_id = $1
		ORDER BY date
	`

	rows, err := p.db.QueryContext(ctx, query, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []agro.DailyAggregate
	for rows.Next() {
		var a agro.DailyAggregate
		if err := rows.Scan(
			&a.FieldID, &a.Date, &a.TempMin, &a.TempMax, &a.TempAvg,
			&a.HumidityAvg, &a.PressureAvg, &a.Battery, &a.Signal,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}

	return aggs, rows.Err()
}

// LatestAggregate returns the newest aggregate for a field, or nil when no
// day has been aggregated yet.
func (p *Postgres) LatestAggregate(ctx context.Context, fieldID int64) (*agro.DailyAggregate, error) {
	query := `
		SELECT field_id, date, temp_min, temp_max, temp_avg,
		       humidity_avg, pressure_avg, battery, signal
		FROM weather_daily
		WHERE field_id = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var a agro.DailyAggregate
	err := p.db.QueryRowContext(ctx, query, fieldID).Scan(
		&a.FieldID, &a.Date, &a.TempMin, &a.TempMax, &a.TempAvg,
		&a.HumidityAvg, &a.PressureAvg, &a.Battery, &a.Signal,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountPhases returns the number of phase definitions for a hybrid.
func (p *Postgres) CountPhases(ctx context.Context, hybridID int64) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM phases WHERE hybrid_id = $1`, hybridID,
	).Scan(&count)
	return count, err
}

// InsertPhase persists a phase definition.
func (p *Postgres) InsertPhase(ctx context.Context, phase *agro.PhaseDefinition) error {
	query := `
		INSERT INTO phases (hybrid_id, phase_name, gdd_from, gdd_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return p.db.QueryRowContext(ctx, query,
		phase.HybridID, phase.PhaseName, phase.GDDFrom, phase.GDDTo,
	).Scan(&phase.ID)
}

// PhasesForHybrid returns a hybrid's phases ordered by gdd_from ascending.
func (p *Postgres) PhasesForHybrid(ctx context.Context, hybridID int64) ([]agro.PhaseDefinition, error) {
	query := `
		SELECT id, hybrid_id, phase_name, gdd_from, gdd_to
		FROM phases
		WHERE hybrid_id = $1
		ORDER BY gdd_from
	`

	rows, err := p.db.QueryContext(ctx, query, hybridID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []agro.PhaseDefinition
	for rows.Next() {
		var ph agro.PhaseDefinition
		if err := rows.Scan(&ph.ID, &ph.HybridID, &ph.PhaseName, &ph.GDDFrom, &ph.GDDTo); err != nil {
			return nil, err
		}
		phases = append(phases, ph)
	}

	return phases, rows.Err()
}

// ListFieldIDs returns the ids of all fields.
func (p *Postgres) ListFieldIDs(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM fields ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetFieldInfo returns a field joined with its hybrid name, or ErrNotFound.
func (p *Postgres) GetFieldInfo(ctx context.Context, fieldID int64) (*agro.FieldInfo, error) {
	query := `
		SELECT f.id, f.name, f.hybrid_id, h.name, f.logger_id
		FROM fields f
		JOIN hybrids h ON f.hybrid_id = h.id
		WHERE f.id = $1
	`

	var info agro.FieldInfo
	err := p.db.QueryRowContext(ctx, query, fieldID).Scan(
		&info.ID, &info.Name, &info.HybridID, &info.Hybrid, &info.LoggerID,
	)
	if err == sql.ErrNoRows {
		return nil, agro.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// FieldsForLogger returns all fields attached to a logger.
func (p *Postgres) FieldsForLogger(ctx context.Context, loggerID int64) ([]agro.Field, error) {
	query := `
		SELECT id, name, hybrid_id, logger_id
		FROM fields
		WHERE logger_id = $1
		ORDER BY id
	`

	rows, err := p.db.QueryContext(ctx, query, loggerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []agro.Field
	for rows.Next() {
		var f agro.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.HybridID, &f.LoggerID); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return fields, rows.Err()
}

// GetLogger returns a logger device record, or ErrNotFound.
func (p *Postgres) GetLogger(ctx context.Context, loggerID int64) (*agro.Logger, error) {
	var l agro.Logger
	err := p.db.QueryRowContext(ctx,
		`SELECT id, serial_number FROM loggers WHERE id = $1`, loggerID,
	).Scan(&l.ID, &l.SerialNumber)
	if err == sql.ErrNoRows {
		return nil, agro.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SeriesForField returns the cumulative GDD series for a field in date order.
func (p *Postgres) SeriesForField(ctx context.Context, fieldID int64) ([]agro.GDDPoint, error) {
	query := `
		SELECT field_id, date, gdd, gdd_sum
		FROM v_gdd_cumulative
		WHERE field_id = $1
		ORDER BY date
	`

	rows, err := p.db.QueryContext(ctx, query, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []agro.GDDPoint
	for rows.Next() {
		var pt agro.GDDPoint
		if err := rows.Scan(&pt.FieldID, &pt.Date, &pt.GDD, &pt.GDDSum); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}

	return points, rows.Err()
}

// LatestCumulative returns the most recent cumulative GDD value for a field,
// 0 when the series is empty.
func (p *Postgres) LatestCumulative(ctx context.Context, fieldID int64) (float64, error) {
	query := `
		SELECT gdd_sum
		FROM v_gdd_cumulative
		WHERE field_id = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var sum float64
	err := p.db.QueryRowContext(ctx, query, fieldID).Scan(&sum)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sum, nil
}
