package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agrolab/agrologger/internal/agro"
)

// MemoryStore is a concurrency-safe in-memory implementation of every domain
// store contract. It backs tests and local runs; the Postgres store is the
// production implementation.
type MemoryStore struct {
	mu sync.RWMutex

	loggers map[int64]agro.Logger
	hybrids map[int64]agro.Hybrid
	fields  map[int64]agro.Field

	readings      []agro.HourlyReading
	nextReadingID int64

	// aggregates keyed by (field_id, date) to enforce insert-once.
	aggregates map[aggregateKey]agro.DailyAggregate

	phases      map[int64][]agro.PhaseDefinition // keyed by hybrid id
	nextPhaseID int64

	gdd map[int64][]agro.GDDPoint // keyed by field id
}

type aggregateKey struct {
	fieldID int64
	date    string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loggers:    make(map[int64]agro.Logger),
		hybrids:    make(map[int64]agro.Hybrid),
		fields:     make(map[int64]agro.Field),
		aggregates: make(map[aggregateKey]agro.DailyAggregate),
		phases:     make(map[int64][]agro.PhaseDefinition),
		gdd:        make(map[int64][]agro.GDDPoint),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SeedLogger registers a logger device.
func (s *MemoryStore) SeedLogger(l agro.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggers[l.ID] = l
}

// SeedHybrid registers a hybrid.
func (s *MemoryStore) SeedHybrid(h agro.Hybrid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hybrids[h.ID] = h
}

// SeedField registers a field.
func (s *MemoryStore) SeedField(f agro.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[f.ID] = f
}

// SeedGDDPoint appends a point to a field's cumulative GDD series. Points
// must be seeded in date order.
func (s *MemoryStore) SeedGDDPoint(p agro.GDDPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gdd[p.FieldID] = append(s.gdd[p.FieldID], p)
}

// InsertReading appends a reading unless an identical (logger, field,
// timestamp) row already exists.
func (s *MemoryStore) InsertReading(ctx context.Context, r *agro.HourlyReading) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.readings {
		existing := &s.readings[i]
		if existing.LoggerID == r.LoggerID &&
			existing.FieldID == r.FieldID &&
			existing.Timestamp.Equal(r.Timestamp) {
			return false, nil
		}
	}

	s.nextReadingID++
	r.ID = s.nextReadingID
	s.readings = append(s.readings, *r)
	return true, nil
}

// ReadingsForDay returns all readings for a field on the given calendar day.
func (s *MemoryStore) ReadingsForDay(ctx context.Context, fieldID int64, day time.Time) ([]agro.HourlyReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := dayKey(day)
	var result []agro.HourlyReading
	for _, r := range s.readings {
		if r.FieldID == fieldID && dayKey(r.Timestamp) == key {
			result = append(result, r)
		}
	}
	return result, nil
}

// LatestReadingForLogger returns the newest reading for a logger, nil when
// the logger has never reported.
func (s *MemoryStore) LatestReadingForLogger(ctx context.Context, loggerID int64) (*agro.HourlyReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *agro.HourlyReading
	for i := range s.readings {
		r := &s.readings[i]
		if r.LoggerID != loggerID {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) ||
			(r.Timestamp.Equal(latest.Timestamp) && r.ID > latest.ID) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// InsertAggregate stores an aggregate unless the (field, date) slot is
// already taken, mirroring ON CONFLICT DO NOTHING.
func (s *MemoryStore) InsertAggregate(ctx context.Context, agg *agro.DailyAggregate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggregateKey{fieldID: agg.FieldID, date: dayKey(agg.Date)}
	if _, exists := s.aggregates[key]; exists {
		return false, nil
	}
	s.aggregates[key] = *agg
	return true, nil
}

// AggregatesForField returns a field's aggregates ordered by date ascending.
func (s *MemoryStore) AggregatesForField(ctx context.Context, fieldID int64) ([]agro.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []agro.DailyAggregate
	for key, agg := range s.aggregates {
		if key.fieldID == fieldID {
			result = append(result, agg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// LatestAggregate returns the newest aggregate for a field, nil when none.
func (s *MemoryStore) LatestAggregate(ctx context.Context, fieldID int64) (*agro.DailyAggregate, error) {
	aggs, err := s.AggregatesForField(ctx, fieldID)
	if err != nil || len(aggs) == 0 {
		return nil, err
	}
	latest := aggs[len(aggs)-1]
	return &latest, nil
}

// CountPhases returns the number of phase definitions for a hybrid.
func (s *MemoryStore) CountPhases(ctx context.Context, hybridID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phases[hybridID]), nil
}

// InsertPhase appends a phase definition for a hybrid.
func (s *MemoryStore) InsertPhase(ctx context.Context, p *agro.PhaseDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPhaseID++
	p.ID = s.nextPhaseID
	s.phases[p.HybridID] = append(s.phases[p.HybridID], *p)
	return nil
}

// PhasesForHybrid returns a hybrid's phases ordered by GDDFrom ascending.
func (s *MemoryStore) PhasesForHybrid(ctx context.Context, hybridID int64) ([]agro.PhaseDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]agro.PhaseDefinition, len(s.phases[hybridID]))
	copy(result, s.phases[hybridID])
	sort.Slice(result, func(i, j int) bool { return result[i].GDDFrom < result[j].GDDFrom })
	return result, nil
}

// ListFieldIDs returns the ids of all known fields.
func (s *MemoryStore) ListFieldIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetFieldInfo returns a field joined with its hybrid name.
func (s *MemoryStore) GetFieldInfo(ctx context.Context, fieldID int64) (*agro.FieldInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fields[fieldID]
	if !ok {
		return nil, agro.ErrNotFound
	}

	info := &agro.FieldInfo{
		ID:       f.ID,
		Name:     f.Name,
		HybridID: f.HybridID,
		LoggerID: f.LoggerID,
	}
	if h, ok := s.hybrids[f.HybridID]; ok {
		info.Hybrid = h.Name
	}
	return info, nil
}

// FieldsForLogger returns all fields attached to a logger.
func (s *MemoryStore) FieldsForLogger(ctx context.Context, loggerID int64) ([]agro.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []agro.Field
	for _, f := range s.fields {
		if f.LoggerID == loggerID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetLogger returns a logger device record.
func (s *MemoryStore) GetLogger(ctx context.Context, loggerID int64) (*agro.Logger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.loggers[loggerID]
	if !ok {
		return nil, agro.ErrNotFound
	}
	return &l, nil
}

// SeriesForField returns a field's cumulative GDD series in date order.
func (s *MemoryStore) SeriesForField(ctx context.Context, fieldID int64) ([]agro.GDDPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]agro.GDDPoint, len(s.gdd[fieldID]))
	copy(result, s.gdd[fieldID])
	return result, nil
}

// LatestCumulative returns the last cumulative GDD value for a field, 0 when
// the series is empty.
func (s *MemoryStore) LatestCumulative(ctx context.Context, fieldID int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.gdd[fieldID]
	if len(series) == 0 {
		return 0, nil
	}
	return series[len(series)-1].GDDSum, nil
}
