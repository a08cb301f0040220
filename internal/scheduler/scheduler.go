package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"circuit-ytd/internal/model"
	"circuit-ytd/internal/standings"
	"circuit-ytd/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type recalculator interface {
	Recalculate(ctx context.Context, yearConfigID string) (standings.Summary, error)
}

type yearSource interface {
	ActiveYearConfig(ctx context.Context) (model.YearConfig, error)
}

// Scheduler recalculates the active year's standings on a cron schedule.
type Scheduler struct {
	years     yearSource
	standings recalculator
	log       *logrus.Entry
	cron      *cron.Cron
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

func New(years yearSource, svc recalculator, log *logrus.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		years:     years,
		standings: svc,
		log:       log.WithField("component", "scheduler"),
		cron:      cron.New(),
		timeout:   timeout,
	}
}

// Start schedules the job; spec is a standard five-field cron expression or
// a descriptor such as "@hourly".
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule recalculation: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.log.WithField("schedule", spec).Info("Standings scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.log.Info("Standings scheduler stopped")
}

// RunOnce recalculates the active year; failures are logged.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	year, err := s.years.ActiveYearConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debug("No year configured, nothing to recalculate")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to load active year")
		return
	}
	summary, err := s.standings.Recalculate(ctx, year.ID)
	if err != nil {
		s.log.WithError(err).WithField("year_config_id", year.ID).Error("Scheduled recalculation failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"year_config_id": year.ID,
		"players":        summary.PlayerCount,
		"missing":        len(summary.MissingTournaments),
	}).Info("Scheduled recalculation finished")
}
