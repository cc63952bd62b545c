package agro

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Aggregator rolls raw hourly readings up into daily aggregates, one row per
// field per day, with insert-once semantics.
type Aggregator struct {
	readings   ReadingStore
	aggregates AggregateStore
	fields     FieldStore

	running *atomic.Bool
}

// NewAggregator creates a new Aggregator.
func NewAggregator(readings ReadingStore, aggregates AggregateStore, fields FieldStore) *Aggregator {
	return &Aggregator{
		readings:   readings,
		aggregates: aggregates,
		fields:     fields,
		running:    atomic.NewBool(false),
	}
}

// FieldError records a single field's failure inside a batch run.
type FieldError struct {
	FieldID int64  `json:"field_id"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// BatchReport summarizes one daily batch run. Per-field failures are
// collected here instead of aborting the run.
type BatchReport struct {
	RunID     string       `json:"run_id"`
	Date      time.Time    `json:"date"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Errors    []FieldError `json:"errors,omitempty"`
}

// AggregateDay collapses all hourly readings of one field on the given
// calendar day into a single DailyAggregate and persists it.
//
// A day without readings is skipped, not an error: both return values are
// nil. A day whose readings carry no usable value for one of the averaged
// sensors fails with ErrNoSensorData and leaves no row behind. When an
// aggregate for (field, day) already exists the write is a silent no-op, so
// the call is safe to repeat for crash recovery or manual backfill.
func (a *Aggregator) AggregateDay(ctx context.Context, fieldID int64, day time.Time) (*DailyAggregate, error) {
	readings, err := a.readings.ReadingsForDay(ctx, fieldID, day)
	if err != nil {
		return nil, fmt.Errorf("fetch readings for field %d: %w", fieldID, err)
	}
	if len(readings) == 0 {
		return nil, nil
	}

	agg, err := buildAggregate(fieldID, day, readings)
	if err != nil {
		return nil, err
	}

	inserted, err := a.aggregates.InsertAggregate(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("insert aggregate for field %d: %w", fieldID, err)
	}
	if !inserted {
		log.Printf("aggregation: field %d already aggregated for %s, skipping write", fieldID, day.Format("2006-01-02"))
	}

	return agg, nil
}

// RunDailyBatch aggregates the given day for every known field. Fields are
// processed concurrently and independently; one field's failure never aborts
// the others. Only one batch may run at a time — a re-entrant trigger fails
// fast with ErrBatchRunning.
func (a *Aggregator) RunDailyBatch(ctx context.Context, day time.Time) (*BatchReport, error) {
	if !a.running.CAS(false, true) {
		return nil, ErrBatchRunning
	}
	defer a.running.Store(false)

	fieldIDs, err := a.fields.ListFieldIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}

	report := &BatchReport{
		RunID: uuid.NewString(),
		Date:  day,
	}

	log.Printf("aggregation: run %s starting for %s across %d fields", report.RunID, day.Format("2006-01-02"), len(fieldIDs))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, fieldID := range fieldIDs {
		fieldID := fieldID
		wg.Add(1)
		go func() {
			defer wg.Done()

			agg, err := a.AggregateDay(ctx, fieldID, day)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				log.Printf("aggregation: field %d failed for %s: %v", fieldID, day.Format("2006-01-02"), err)
				report.Failed++
				report.Errors = append(report.Errors, FieldError{
					FieldID: fieldID,
					Err:     err,
					Message: err.Error(),
				})
			case agg == nil:
				report.Skipped++
			default:
				report.Succeeded++
			}
		}()
	}
	wg.Wait()

	log.Printf("aggregation: run %s done: %d succeeded, %d skipped, %d failed", report.RunID, report.Succeeded, report.Skipped, report.Failed)
	return report, nil
}

// buildAggregate reduces one day's readings to a DailyAggregate. Null sensor
// values are excluded from min/max/avg; battery and signal are snapshots of
// the reading with the highest timestamp, highest id breaking ties.
func buildAggregate(fieldID int64, day time.Time, readings []HourlyReading) (*DailyAggregate, error) {
	var (
		temps, hums, press []float64
		latest             *HourlyReading
	)

	for i := range readings {
		r := &readings[i]

		if r.Temp != nil {
			temps = append(temps, *r.Temp)
		}
		if r.Humidity != nil {
			hums = append(hums, *r.Humidity)
		}
		if r.Pressure != nil {
			press = append(press, *r.Pressure)
		}

		if latest == nil ||
			r.Timestamp.After(latest.Timestamp) ||
			(r.Timestamp.Equal(latest.Timestamp) && r.ID > latest.ID) {
			latest = r
		}
	}

	if len(temps) == 0 {
		return nil, fmt.Errorf("field %d on %s: %w: temperature", fieldID, day.Format("2006-01-02"), ErrNoSensorData)
	}
	if len(hums) == 0 {
		return nil, fmt.Errorf("field %d on %s: %w: humidity", fieldID, day.Format("2006-01-02"), ErrNoSensorData)
	}
	if len(press) == 0 {
		return nil, fmt.Errorf("field %d on %s: %w: pressure", fieldID, day.Format("2006-01-02"), ErrNoSensorData)
	}

	tempMin, tempMax := temps[0], temps[0]
	for _, t := range temps[1:] {
		if t < tempMin {
			tempMin = t
		}
		if t > tempMax {
			tempMax = t
		}
	}

	return &DailyAggregate{
		FieldID:     fieldID,
		Date:        day,
		TempMin:     tempMin,
		TempMax:     tempMax,
		TempAvg:     mean(temps),
		HumidityAvg: mean(hums),
		PressureAvg: mean(press),
		Battery:     latest.Battery,
		Signal:      latest.Signal,
	}, nil
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
