package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/synclog"
)

// Scheduler runs a full sync at a fixed interval. An interval of zero or
// less leaves it disabled.
type Scheduler struct {
	orch     *Orchestrator
	cron     *cron.Cron
	interval time.Duration
	daysBack int
	logger   zerolog.Logger
}

func NewScheduler(orch *Orchestrator, intervalMinutes, daysBack int, logger zerolog.Logger) *Scheduler {
	if daysBack <= 0 {
		daysBack = DefaultWindowDays
	}
	return &Scheduler{
		orch:     orch,
		interval: time.Duration(intervalMinutes) * time.Minute,
		daysBack: daysBack,
		logger:   logger,
	}
}

// Start registers the periodic job and starts the cron runner. It is a no-op
// when the interval is disabled.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info().Msg("scheduled sync disabled")
		return nil
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %dm", int(s.interval.Minutes()))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("interval", s.interval.String()).
		Int("days_back", s.daysBack).
		Msg("scheduled sync started")
	return nil
}

// Stop halts the cron runner and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduled sync stopped")
}

// tick runs one full sync. A run already holding the token is skipped, not
// queued.
func (s *Scheduler) tick() {
	ctx := context.Background()
	w := TrailingWindow(time.Now(), s.daysBack)

	summary, err := s.orch.RunAll(ctx, w, synclog.TypeScheduled, nil)
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			s.logger.Warn().Msg("scheduled sync skipped, another run in progress")
			return
		}
		s.logger.Error().Err(err).Msg("scheduled sync failed")
		return
	}

	s.logger.Info().
		Bool("all_ok", summary.AllOK).
		Int("processed", summary.RecordsProcessed).
		Int("failed", summary.RecordsFailed).
		Msg("scheduled sync completed")
}
