// Package monitoring reports queue health per workspace and raises alerts
// when it degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

// DefaultStuckAfter is how long an in_progress row may sit before it counts
// as stuck.
const DefaultStuckAfter = 30 * time.Minute

// Snapshot is a point-in-time view of one workspace's queues and usage.
type Snapshot struct {
	WorkspaceID string             `json:"workspace_id"`
	Tasks       store.QueueCounts  `json:"tasks"`
	Emails      store.QueueCounts  `json:"emails"`
	Usage       *model.UsageRecord `json:"usage"`

	// Failed over finished (complete/sent + failed), 0 when nothing finished.
	TaskFailRate  float64 `json:"task_fail_rate"`
	EmailFailRate float64 `json:"email_fail_rate"`

	StuckAfterMins int       `json:"stuck_after_mins"`
	CollectedAt    time.Time `json:"collected_at"`
}

// Source is the read side of the store the collector needs.
type Source interface {
	TaskCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (store.QueueCounts, error)
	EmailCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (store.QueueCounts, error)
	GetUsage(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	src        Source
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. A non-positive stuckAfter uses
// DefaultStuckAfter.
func NewCollector(src Source, stuckAfter time.Duration) *Collector {
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	return &Collector{src: src, stuckAfter: stuckAfter, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Snapshot collects queue counts, stuck counts and current-month usage for
// the workspace.
func (c *Collector) Snapshot(ctx context.Context, workspaceID string) (*Snapshot, error) {
	now := c.now()
	staleBefore := now.Add(-c.stuckAfter)

	tasks, err := c.src.TaskCounts(ctx, workspaceID, staleBefore)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: task counts")
	}
	emails, err := c.src.EmailCounts(ctx, workspaceID, staleBefore)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: email counts")
	}
	usage, err := c.src.GetUsage(ctx, workspaceID, model.MonthKey(now))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: usage")
	}

	return &Snapshot{
		WorkspaceID:    workspaceID,
		Tasks:          tasks,
		Emails:         emails,
		Usage:          usage,
		TaskFailRate:   failRate(tasks, string(model.TaskCompleted), string(model.TaskFailed)),
		EmailFailRate:  failRate(emails, string(model.EmailSent), string(model.EmailFailed)),
		StuckAfterMins: int(c.stuckAfter / time.Minute),
		CollectedAt:    now,
	}, nil
}

func failRate(q store.QueueCounts, ok, failed string) float64 {
	finished := q.ByStatus[ok] + q.ByStatus[failed]
	if finished == 0 {
		return 0
	}
	return float64(q.ByStatus[failed]) / float64(finished)
}

func finished(q store.QueueCounts, ok, failed string) int {
	return q.ByStatus[ok] + q.ByStatus[failed]
}
