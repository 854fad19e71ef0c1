// Package scheduler runs the periodic metadata jobs.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/logging"
)

// MetadataJobs are the jobs of the metadata updater.
type MetadataJobs interface {
	Run(ctx context.Context)
	RunBulkCleanup(ctx context.Context)
}

// Scheduler manages the cron jobs.  Jobs run with a context that is
// cancelled by Stop.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler whose jobs never overlap with their own
// previous run.
func New(ctx context.Context) *Scheduler {
	logger := logging.Cron{Component: "scheduler"}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// BulkCleanupSpec runs once a day at hour.
func BulkCleanupSpec(hour int) string { return fmt.Sprintf("0 %d * * *", hour) }

// RegisterMetadata schedules the register refresh and, when cleanup is
// batched, the daily cleanup.
func (s *Scheduler) RegisterMetadata(jobs MetadataJobs, cfg config.MetadataCacheConfig) error {
	if _, err := s.cron.AddFunc(cfg.UpdateSchedule, func() { jobs.Run(s.ctx) }); err != nil {
		return fmt.Errorf("schedule metadata update %q: %w", cfg.UpdateSchedule, err)
	}
	log.Info().Str("schedule", cfg.UpdateSchedule).Msg("scheduled metadata update job")

	if cfg.CleanupEnabled && cfg.BulkCleanup {
		spec := BulkCleanupSpec(cfg.BulkCleanupHour)
		if _, err := s.cron.AddFunc(spec, func() { jobs.RunBulkCleanup(s.ctx) }); err != nil {
			return fmt.Errorf("schedule bulk cleanup %q: %w", spec, err)
		}
		log.Info().Str("schedule", spec).Msg("scheduled consent bulk cleanup job")
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and cancels running jobs.  The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}
