package agro

import (
	"context"
	"time"
)

// Logger is a physical field sensor device identified by serial number.
type Logger struct {
	ID           int64  `json:"id"`
	SerialNumber string `json:"serial_number"`
}

// Hybrid is a cultivar with its own phenological phase schedule.
type Hybrid struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Field is an agricultural field monitored by one logger and planted
// with one hybrid.
type Field struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	HybridID int64  `json:"hybrid_id"`
	LoggerID int64  `json:"logger_id"`
}

// FieldInfo is a Field joined with its hybrid name, as shown on the dashboard.
type FieldInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	HybridID int64  `json:"-"`
	Hybrid   string `json:"hybrid"`
	LoggerID int64  `json:"-"`
}

// HourlyReading is a single raw telemetry submission fanned out to a field.
// Sensor fields are nullable; loggers report what they have.
// Readings are write-once and never mutated.
type HourlyReading struct {
	ID        int64     `json:"id"`
	LoggerID  int64     `json:"logger_id"`
	FieldID   int64     `json:"field_id"`
	Timestamp time.Time `json:"timestamp"`

	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
	Battery  *float64 `json:"battery"`
	Signal   *float64 `json:"signal"`
}

// DailyAggregate is the once-per-field-per-day rollup of hourly readings.
// Battery and Signal are snapshots of the latest reading of the day,
// not averages.
type DailyAggregate struct {
	FieldID     int64     `json:"field_id"`
	Date        time.Time `json:"date"`
	TempMin     float64   `json:"temp_min"`
	TempMax     float64   `json:"temp_max"`
	TempAvg     float64   `json:"temp_avg"`
	HumidityAvg float64   `json:"humidity_avg"`
	PressureAvg float64   `json:"pressure_avg"`
	Battery     *float64  `json:"battery"`
	Signal      *float64  `json:"signal"`
}

// PhaseDefinition is a named developmental stage of a hybrid, bounded by a
// GDD range. A hybrid carries at most MaxPhasesPerHybrid of these.
type PhaseDefinition struct {
	ID        int64   `json:"id"`
	HybridID  int64   `json:"hybrid_id"`
	PhaseName string  `json:"phase_name"`
	GDDFrom   float64 `json:"gdd_from"`
	GDDTo     float64 `json:"gdd_to"`
}

// PhaseStatus is the evaluation of one phase against a cumulative GDD value.
// It is derived on every query and never persisted.
type PhaseStatus struct {
	PhaseName  string  `json:"phase_name"`
	GDDFrom    float64 `json:"gdd_from"`
	GDDTo      float64 `json:"gdd_to"`
	CurrentGDD float64 `json:"current_gdd"`
	IsActive   bool    `json:"is_active"`
	GDDLeft    float64 `json:"gdd_left"`
	Completed  bool    `json:"completed"`
}

// GDDPoint is one entry of the externally computed cumulative GDD series.
type GDDPoint struct {
	FieldID int64     `json:"field_id"`
	Date    time.Time `json:"date"`
	GDD     float64   `json:"gdd"`
	GDDSum  float64   `json:"gdd_sum"`
}

// ReadingStore is the contract for raw hourly telemetry.
type ReadingStore interface {
	// InsertReading persists a reading. It reports false when an identical
	// (logger, field, timestamp) reading already exists.
	InsertReading(ctx context.Context, r *HourlyReading) (bool, error)

	// ReadingsForDay returns all readings for a field on the given calendar day.
	ReadingsForDay(ctx context.Context, fieldID int64, day time.Time) ([]HourlyReading, error)

	// LatestReadingForLogger returns the most recent reading submitted by a
	// logger, or nil when the logger has never reported.
	LatestReadingForLogger(ctx context.Context, loggerID int64) (*HourlyReading, error)
}

// AggregateStore is the contract for daily aggregates. The backing store must
// enforce uniqueness on (field_id, date).
type AggregateStore interface {
	// InsertAggregate persists an aggregate with insert-once semantics:
	// a conflicting (field_id, date) row makes the call a no-op and the
	// returned bool false.
	InsertAggregate(ctx context.Context, agg *DailyAggregate) (bool, error)

	AggregatesForField(ctx context.Context, fieldID int64) ([]DailyAggregate, error)

	// LatestAggregate returns the newest aggregate for a field, or nil when
	// no day has been aggregated yet.
	LatestAggregate(ctx context.Context, fieldID int64) (*DailyAggregate, error)
}

// PhaseStore is the contract for phase definitions. Only the PhaseRegistry
// writes through it.
type PhaseStore interface {
	CountPhases(ctx context.Context, hybridID int64) (int, error)
	InsertPhase(ctx context.Context, p *PhaseDefinition) error

	// PhasesForHybrid returns the hybrid's phases ordered by gdd_from ascending.
	PhasesForHybrid(ctx context.Context, hybridID int64) ([]PhaseDefinition, error)
}

// FieldStore is the contract for field metadata.
type FieldStore interface {
	ListFieldIDs(ctx context.Context) ([]int64, error)
	GetFieldInfo(ctx context.Context, fieldID int64) (*FieldInfo, error)
	FieldsForLogger(ctx context.Context, loggerID int64) ([]Field, error)
}

// LoggerStore is the contract for logger device records.
type LoggerStore interface {
	GetLogger(ctx context.Context, loggerID int64) (*Logger, error)
}

// GDDSource supplies the externally computed cumulative GDD series.
type GDDSource interface {
	SeriesForField(ctx context.Context, fieldID int64) ([]GDDPoint, error)

	// LatestCumulative returns the most recent cumulative GDD value for a
	// field, or 0 when the series is empty.
	LatestCumulative(ctx context.Context, fieldID int64) (float64, error)
}
