package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/agrolab/agrologger/internal/agro"
)

// Scheduler triggers the daily aggregation batch at a fixed wall-clock time.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	aggregator *agro.Aggregator
	timeOfDay  string // "HH:MM", interpreted in UTC
}

// New creates a Scheduler running the batch at the given UTC time of day.
func New(timeOfDay string, aggregator *agro.Aggregator) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:  s,
		aggregator: aggregator,
		timeOfDay:  timeOfDay,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
// SingletonMode keeps a slow batch from overlapping with the next trigger;
// an overlapping run is skipped, never executed concurrently.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.timeOfDay).SingletonMode().Do(func() {
		log.Printf("scheduler: running daily aggregation at %s", s.timeOfDay)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		report, err := s.aggregator.RunDailyBatch(ctx, time.Now().UTC())
		if err != nil {
			if errors.Is(err, agro.ErrBatchRunning) {
				log.Println("scheduler: previous batch still running, skipping trigger")
				return
			}
			log.Printf("scheduler: daily aggregation failed: %v", err)
			return
		}

		log.Printf("scheduler: daily aggregation run %s finished: %d succeeded, %d skipped, %d failed",
			report.RunID, report.Succeeded, report.Skipped, report.Failed)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
