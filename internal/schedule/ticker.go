// Package schedule drives the batch entry points on an interval, either
// in-process or as a Temporal cron workflow.
package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recruit-cli/internal/model"
)

// BatchRunner is a dispatcher's batch entry point.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error)
}

// FollowUpRunner schedules due follow-ups for every active campaign of a
// workspace.
type FollowUpRunner interface {
	ScheduleAll(ctx context.Context, workspaceID string) (int, error)
}

// Runners are the batch entry points a sweep invokes. Nil runners are skipped.
type Runners struct {
	Enrichment BatchRunner
	Email      BatchRunner
	FollowUps  FollowUpRunner
}

// TickerConfig configures the in-process scheduler.
type TickerConfig struct {
	Interval         time.Duration
	FollowUpInterval time.Duration
	Concurrency      int
	BatchSize        int
	Workspaces       []string
}

// SweepSummary totals one sweep across workspaces.
type SweepSummary struct {
	Processed int64
	Failed    int64
	FollowUps int64
	Errors    int64
}

// Ticker runs a sweep every interval until its context ends.
type Ticker struct {
	runners      Runners
	cfg          TickerConfig
	now          func() time.Time
	lastFollowUp time.Time
}

// NewTicker creates a Ticker. Zero intervals default to one minute for
// batches and one hour for follow-ups.
func NewTicker(r Runners, cfg TickerConfig) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FollowUpInterval <= 0 {
		cfg.FollowUpInterval = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Ticker{runners: r, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source that gates follow-up runs.
func (t *Ticker) SetClock(now func() time.Time) {
	t.now = now
}

// Run sweeps immediately, then on every tick. It blocks until ctx is
// cancelled.
func (t *Ticker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "schedule.ticker"))
	log.Info("starting scheduler",
		zap.Duration("interval", t.cfg.Interval),
		zap.Duration("followup_interval", t.cfg.FollowUpInterval),
		zap.Strings("workspaces", t.cfg.Workspaces),
	)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	t.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep runs one enrichment batch and one email batch per workspace, plus
// follow-up scheduling when its interval has elapsed. Failures are logged
// and counted, never returned.
func (t *Ticker) Sweep(ctx context.Context) SweepSummary {
	var processed, failed, followUps, errs atomic.Int64

	runFollowUps := t.runners.FollowUps != nil && t.now().Sub(t.lastFollowUp) >= t.cfg.FollowUpInterval
	if runFollowUps {
		t.lastFollowUp = t.now()
	}

	var g errgroup.Group
	g.SetLimit(t.cfg.Concurrency)

	batch := func(kind, ws string, r BatchRunner) {
		if r == nil {
			return
		}
		g.Go(func() error {
			res, err := r.ProcessBatch(ctx, ws, t.cfg.BatchSize)
			if err != nil {
				errs.Add(1)
				zap.L().Error("schedule: batch failed",
					zap.String("kind", kind),
					zap.String("workspace_id", ws),
					zap.Error(err),
				)
				return nil
			}
			processed.Add(int64(res.Processed))
			failed.Add(int64(res.Failed))
			return nil
		})
	}

	for _, ws := range t.cfg.Workspaces {
		if ctx.Err() != nil {
			break
		}
		batch("enrichment", ws, t.runners.Enrichment)
		batch("email", ws, t.runners.Email)
		if runFollowUps {
			g.Go(func() error {
				n, err := t.runners.FollowUps.ScheduleAll(ctx, ws)
				if err != nil {
					errs.Add(1)
					zap.L().Error("schedule: follow-ups failed", zap.String("workspace_id", ws), zap.Error(err))
					return nil
				}
				followUps.Add(int64(n))
				return nil
			})
		}
	}
	_ = g.Wait()

	sum := SweepSummary{
		Processed: processed.Load(),
		Failed:    failed.Load(),
		FollowUps: followUps.Load(),
		Errors:    errs.Load(),
	}
	zap.L().Info("schedule: sweep complete",
		zap.Int("workspaces", len(t.cfg.Workspaces)),
		zap.Int64("processed", sum.Processed),
		zap.Int64("failed", sum.Failed),
		zap.Int64("followups", sum.FollowUps),
		zap.Int64("errors", sum.Errors),
	)
	return sum
}
