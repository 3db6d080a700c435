package tasks

import (
	"context"
	"log/slog"
	"time"
)

// rankStartDelay is how soon after startup the first recompute runs,
// so a restarted server recovers its ranking quickly.
const rankStartDelay = 5 * time.Second

// Ranker recomputes the global profile ranking.
type Ranker interface {
	ComputeRanks(ctx context.Context) error
}

// RankCompute keeps profile ranks in step with accumulated points.
type RankCompute struct {
	ranker     Ranker
	interval   time.Duration
	startDelay time.Duration
}

func NewRankCompute(r Ranker, interval time.Duration) *RankCompute {
	return &RankCompute{
		ranker:     r,
		interval:   interval,
		startDelay: rankStartDelay,
	}
}

// Run recomputes ranks shortly after startup and then at the
// configured interval. A failed run is retried at the next tick.
func (rc *RankCompute) Run(ctx context.Context) error {
	timer := time.NewTimer(rc.startDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		start := time.Now()
		if err := rc.ranker.ComputeRanks(ctx); err != nil {
			slog.Error("rank recompute failed", "error", err)
		} else {
			slog.Info("ranks recomputed",
				"took", time.Since(start),
				"next", time.Now().Add(rc.interval))
		}
		timer.Reset(rc.interval)
	}
}
