// Package crontab schedules background maintenance jobs.
package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/infrastructure/logger"
	"tutor-server/services/voice-api/internal/infrastructure/metrics"
)

// CronJobTimeout bounds each job execution.
const CronJobTimeout = 10 * time.Minute

// Crontab runs the stale-conversation sweep on a schedule. Sessions that
// died without a clean teardown (process crash, hard network split) leave
// conversations stuck in active; the sweep flips them to ended.
type Crontab struct {
	ctab          *crontab.Crontab
	conversations conversation.Service
	schedule      string
}

// NewCrontab creates the maintenance scheduler.
func NewCrontab(cfg *config.Config, conversations conversation.Service) *Crontab {
	return &Crontab{
		ctab:          crontab.New(),
		conversations: conversations,
		schedule:      cfg.StaleSweepCronSchedule,
	}
}

// Run schedules the jobs and blocks until the context is canceled.
func (c *Crontab) Run(ctx context.Context) error {
	log := logger.GetLogger()

	// Sweep once on startup to recover from a crash.
	c.sweep(ctx)

	if err := c.ctab.AddJob(c.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.sweep(jobCtx)
	}); err != nil {
		return fmt.Errorf("schedule stale sweep: %w", err)
	}
	log.Info().Str("schedule", c.schedule).Msg("stale conversation sweep scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweep(ctx context.Context) {
	log := logger.GetLogger()

	n, err := c.conversations.SweepStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("stale conversation sweep failed")
		return
	}
	if n > 0 {
		metrics.StaleConversationsSwept.Add(float64(n))
	}
}
