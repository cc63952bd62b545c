package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/agrolab/agrologger/internal/agro"
)

var (
	// ErrRateLimited is returned when a logger submits again inside its
	// rate-limit window.
	ErrRateLimited = errors.New("too many requests")

	// ErrSerialMismatch is returned when a submission's serial number does
	// not match the registered logger.
	ErrSerialMismatch = errors.New("invalid serial number")
)

// Submission is one telemetry report from a field logger. Sensor values are
// nullable; loggers report what they have.
type Submission struct {
	LoggerID     int64
	SerialNumber string
	Timestamp    time.Time

	Temp     *float64
	Humidity *float64
	Pressure *float64
	Battery  *float64
	Signal   *float64
}

// Service is the ingestion boundary: it authenticates the device identity,
// applies per-logger rate limiting and fans the reading out to every field
// attached to the logger. Duplicate (logger, field, timestamp) submissions
// are absorbed by the store.
type Service struct {
	loggers  agro.LoggerStore
	fields   agro.FieldStore
	readings agro.ReadingStore
	limiter  RateLimiter
}

// NewService creates an ingestion service.
func NewService(loggers agro.LoggerStore, fields agro.FieldStore, readings agro.ReadingStore, limiter RateLimiter) *Service {
	return &Service{
		loggers:  loggers,
		fields:   fields,
		readings: readings,
		limiter:  limiter,
	}
}

// Submit validates and persists one telemetry report.
func (s *Service) Submit(ctx context.Context, sub Submission) error {
	allowed, err := s.limiter.Allow(ctx, "logger:"+strconv.FormatInt(sub.LoggerID, 10))
	if err != nil {
		return fmt.Errorf("rate limit check for logger %d: %w", sub.LoggerID, err)
	}
	if !allowed {
		log.Printf("ingest: rate limit exceeded for logger %d", sub.LoggerID)
		return ErrRateLimited
	}

	logger, err := s.loggers.GetLogger(ctx, sub.LoggerID)
	if err != nil {
		if errors.Is(err, agro.ErrNotFound) {
			log.Printf("ingest: unknown logger %d", sub.LoggerID)
			return fmt.Errorf("logger %d: %w", sub.LoggerID, agro.ErrNotFound)
		}
		return fmt.Errorf("lookup logger %d: %w", sub.LoggerID, err)
	}
	if logger.SerialNumber != sub.SerialNumber {
		log.Printf("ingest: serial mismatch for logger %d", sub.LoggerID)
		return ErrSerialMismatch
	}

	fields, err := s.fields.FieldsForLogger(ctx, sub.LoggerID)
	if err != nil {
		return fmt.Errorf("lookup fields for logger %d: %w", sub.LoggerID, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("no fields for logger %d: %w", sub.LoggerID, agro.ErrNotFound)
	}

	for _, field := range fields {
		reading := &agro.HourlyReading{
			LoggerID:  sub.LoggerID,
			FieldID:   field.ID,
			Timestamp: sub.Timestamp,
			Temp:      sub.Temp,
			Humidity:  sub.Humidity,
			Pressure:  sub.Pressure,
			Battery:   sub.Battery,
			Signal:    sub.Signal,
		}

		inserted, err := s.readings.InsertReading(ctx, reading)
		if err != nil {
			return fmt.Errorf("insert reading for field %d: %w", field.ID, err)
		}
		if !inserted {
			log.Printf("ingest: duplicate reading for logger %d field %d at %s", sub.LoggerID, field.ID, sub.Timestamp.Format(time.RFC3339))
		}
	}

	log.Printf("ingest: saved reading from logger %d (serial %s) at %s across %d fields",
		sub.LoggerID, sub.SerialNumber, sub.Timestamp.Format(time.RFC3339), len(fields))
	return nil
}
