package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// MinFollowupInterval is the shortest interval the scheduler accepts.
const MinFollowupInterval = time.Second

// RunScheduler runs due follow-ups and purges expired interactions every
// interval until ctx is canceled.
func (g *Glados) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval < MinFollowupInterval {
		interval = MinFollowupInterval
	}
	log.Info().Dur("interval", interval).Msg("follow-up scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("follow-up scheduler stopped")
			return
		case <-ticker.C:
			g.runCycle(ctx)
		}
	}
}

func (g *Glados) runCycle(ctx context.Context) {
	now := time.Now()
	ran, err := g.RunFollowups(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("running follow-ups")
	}
	purged, err := g.PurgeExpired(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("purging expired interactions")
	}
	if ran > 0 || purged > 0 {
		log.Info().Int("followups", ran).Int("purged", purged).Dur("elapsed", time.Since(now)).Msg("scheduler cycle complete")
	}
}
