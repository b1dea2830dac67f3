package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/scalimax/attendtrack/internal/metrics"
	"github.com/scalimax/attendtrack/internal/storage"
	"github.com/scalimax/attendtrack/internal/tracker"
)

// Scheduler periodically drives session recalculation across every
// register: it purges orphaned locks, performs the forced full rebuild for
// registers flagged pending, and the incremental update for the rest. A
// failure in one register never stops the pass.
type Scheduler struct {
	store    storage.Store
	tracker  *tracker.Tracker
	interval time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a scheduler driving the given tracker.
func New(store storage.Store, trk *tracker.Tracker, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		tracker:  trk,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the periodic loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().Dur("interval", s.interval).Msg("Recalculation scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info().Msg("Recalculation scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce executes a single scheduler pass. Exposed so the CLI can drive a
// pass on demand.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()

	if _, err := s.tracker.PurgeOrphanLocks(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge orphaned locks")
	}

	registers, err := s.store.Registers().List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list registers")
		return
	}

	for _, register := range registers {
		if register.PendingRecalc {
			s.recalcRegister(ctx, register)
		} else {
			s.updateRegister(ctx, register)
		}
	}

	metrics.SchedulerRuns.Inc()
	s.logger.Info().
		Int("registers", len(registers)).
		Dur("elapsed", time.Since(started)).
		Msg("Scheduler pass complete")
}

// recalcRegister performs the forced full rebuild for a flagged register
// and clears the flag afterwards.
func (s *Scheduler) recalcRegister(ctx context.Context, register storage.Register) {
	s.logger.Info().Str("register_id", register.ID).Msg("Running pending full recalculation")

	recalculated, err := s.tracker.ForceRecalcAll(ctx, register.ID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("register_id", register.ID).Msg("Full recalculation failed")
		return
	}

	// The flag is only cleared once the rebuild went through; a failed pass
	// retries on the next tick.
	if err := s.tracker.SetPendingRecalc(ctx, register.ID, false); err != nil {
		s.logger.Error().Err(err).Str("register_id", register.ID).Msg("Failed to clear pending recalc flag")
		return
	}

	s.logger.Info().
		Str("register_id", register.ID).
		Int("users", recalculated).
		Msg("Full recalculation complete")
}

func (s *Scheduler) updateRegister(ctx context.Context, register storage.Register) {
	updated, err := s.tracker.UpdateAllNeedingRecalculation(ctx, register.ID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("register_id", register.ID).Msg("Incremental update failed")
		return
	}
	if updated > 0 {
		s.logger.Info().
			Str("register_id", register.ID).
			Int("users", updated).
			Msg("Incremental update complete")
	}
}
