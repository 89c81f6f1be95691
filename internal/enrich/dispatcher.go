// Package enrich plans, queues and executes the enrichment tasks that fill
// in missing candidate data.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/resilience"
	"github.com/sells-group/recruit-cli/internal/store"
)

// Store is the persistence the planner and dispatcher need.
type Store interface {
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	UpdateCandidate(ctx context.Context, c *model.Candidate) error
	SetEnrichmentStatus(ctx context.Context, candidateID string, status model.EnrichmentStatus, now time.Time) error
	InsertTasks(ctx context.Context, tasks []model.EnrichmentTask) (int, error)
	ClaimTasks(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EnrichmentTask, error)
	UpdateTask(ctx context.Context, t *model.EnrichmentTask) error
	ListTasks(ctx context.Context, candidateID string) ([]model.EnrichmentTask, error)
	FailPendingTasks(ctx context.Context, workspaceID string, types []model.TaskType, reason string, now time.Time) ([]string, error)
	CountPendingTasks(ctx context.Context, workspaceID string) (int, error)
	ResetStuckTasks(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error)
}

// Ledger meters provider calls.
type Ledger interface {
	Reserve(ctx context.Context, workspaceID, provider string) error
	Record(ctx context.Context, workspaceID, provider string, extraCost float64) error
}

// Config tunes the dispatcher.
type Config struct {
	BatchSize         int
	RateLimitCooldown time.Duration
	SkillsCap         int
}

// Dispatcher claims and executes enrichment tasks one batch at a time.
type Dispatcher struct {
	store    Store
	registry Registry
	ledger   Ledger
	cfg      Config
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil ledger disables metering.
func NewDispatcher(st Store, registry Registry, ledger Ledger, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = resilience.DefaultCooldown
	}
	if cfg.SkillsCap <= 0 {
		cfg.SkillsCap = DefaultSkillsCap
	}
	return &Dispatcher{
		store:    st,
		registry: registry,
		ledger:   ledger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// ProcessBatch claims up to batchSize due tasks of the workspace in
// (priority, next_attempt_at) order and runs them. A single task's failure
// is recorded on the task and never aborts the batch; a persistence failure
// does. Once a task type is rate limited, the rest of that type in the
// batch is released untouched.
func (d *Dispatcher) ProcessBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error) {
	var res model.BatchResult
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}

	if err := d.failUnimplemented(ctx, workspaceID); err != nil {
		return res, err
	}

	tasks, err := d.store.ClaimTasks(ctx, workspaceID, batchSize, d.now())
	if err != nil {
		return res, eris.Wrap(err, "enrich: claim tasks")
	}

	throttled := make(map[model.TaskType]bool)
	for i := range tasks {
		t := &tasks[i]
		if throttled[t.Type] {
			if err := d.release(ctx, t); err != nil {
				return res, err
			}
			continue
		}

		res.Processed++
		ok, err := d.process(ctx, t, throttled)
		if err != nil {
			return res, err
		}
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	remaining, err := d.store.CountPendingTasks(ctx, workspaceID)
	if err != nil {
		return res, eris.Wrap(err, "enrich: count pending")
	}
	res.Remaining = remaining

	zap.L().Info("enrich: batch complete",
		zap.String("workspace_id", workspaceID),
		zap.Int("claimed", len(tasks)),
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("remaining", res.Remaining),
	)
	return res, nil
}

// failUnimplemented fails pending tasks of types with no executor so they
// never hold up the types that can run.
func (d *Dispatcher) failUnimplemented(ctx context.Context, workspaceID string) error {
	for _, t := range model.TaskTypes {
		if _, ok := d.registry[t]; ok {
			continue
		}
		now := d.now()
		reason := fmt.Sprintf("no executor registered for task type %s", t)
		ids, err := d.store.FailPendingTasks(ctx, workspaceID, []model.TaskType{t}, reason, now)
		if err != nil {
			return eris.Wrapf(err, "enrich: fail unimplemented %s", t)
		}
		for _, id := range ids {
			if err := d.refreshStatus(ctx, id); err != nil {
				return err
			}
		}
		if len(ids) > 0 {
			zap.L().Info("enrich: failed unimplemented tasks",
				zap.String("workspace_id", workspaceID),
				zap.String("type", string(t)),
				zap.Int("candidates", len(ids)),
			)
		}
	}
	return nil
}

// release returns a claimed but unexecuted task to pending and gives back
// the attempt the claim counted.
func (d *Dispatcher) release(ctx context.Context, t *model.EnrichmentTask) error {
	t.Status = model.TaskPending
	t.Attempts = max(t.Attempts-1, 0)
	t.UpdatedAt = d.now()
	if err := d.store.UpdateTask(ctx, t); err != nil {
		return eris.Wrapf(err, "enrich: release task %s", t.ID)
	}
	return nil
}

// process runs one claimed task. It reports whether the task succeeded; a
// returned error is a persistence failure that aborts the batch.
func (d *Dispatcher) process(ctx context.Context, t *model.EnrichmentTask, throttled map[model.TaskType]bool) (bool, error) {
	c, err := d.store.GetCandidate(ctx, t.CandidateID)
	if errors.Is(err, store.ErrNotFound) {
		return false, d.fail(ctx, t, resilience.NewPermanent("", eris.Wrap(err, "candidate missing")))
	}
	if err != nil {
		return false, eris.Wrapf(err, "enrich: load candidate %s", t.CandidateID)
	}

	ex, ok := d.registry[t.Type]
	if !ok {
		return false, d.fail(ctx, t, resilience.NewPermanent("", eris.Errorf("no executor registered for task type %s", t.Type)))
	}
	t.Provider = ex.Provider()

	result, execErr := d.execute(ctx, ex, t, c)
	if execErr != nil {
		if resilience.Classify(execErr) == resilience.RateLimited {
			throttled[t.Type] = true
		}
		return false, d.fail(ctx, t, execErr)
	}

	now := d.now()
	result.apply(c, d.cfg.SkillsCap)
	c.DataCompleteness = c.Completeness()
	c.UpdatedAt = now
	err = d.store.UpdateCandidate(ctx, c)
	if errors.Is(err, store.ErrDuplicate) {
		// The found email or profile already belongs to another candidate.
		return false, d.fail(ctx, t, resilience.NewPermanent(ex.Provider(), err))
	}
	if err != nil {
		return false, eris.Wrapf(err, "enrich: apply %s result", t.Type)
	}

	t.Status = model.TaskCompleted
	t.LastError = ""
	t.CompletedAt = &now
	t.UpdatedAt = now
	if err := d.store.UpdateTask(ctx, t); err != nil {
		return false, eris.Wrapf(err, "enrich: complete task %s", t.ID)
	}
	return true, d.refreshStatus(ctx, c.ID)
}

// execute reserves ledger capacity, runs the executor and records the call.
// Calls that never reached the provider are not recorded.
func (d *Dispatcher) execute(ctx context.Context, ex Executor, t *model.EnrichmentTask, c *model.Candidate) (Result, error) {
	if d.ledger != nil {
		if err := d.ledger.Reserve(ctx, t.WorkspaceID, ex.Provider()); err != nil {
			return nil, err
		}
	}

	result, err := ex.Execute(ctx, c)
	if err == nil && result.TaskType() != t.Type {
		err = resilience.NewPermanent(ex.Provider(), eris.Errorf("executor returned %s result for %s task", result.TaskType(), t.Type))
	}

	if d.ledger != nil && !errors.Is(err, ErrMissingInput) && resilience.Classify(err) != resilience.RateLimited {
		var cost float64
		if result != nil {
			cost = resultCost(result)
		}
		if rerr := d.ledger.Record(ctx, t.WorkspaceID, ex.Provider(), cost); rerr != nil {
			zap.L().Error("enrich: record usage failed",
				zap.String("workspace_id", t.WorkspaceID),
				zap.String("provider", ex.Provider()),
				zap.Error(rerr),
			)
		}
	}
	return result, err
}

// fail schedules a failed attempt per its classification: permanent or
// exhausted tasks fail, rate limits cool down with the claimed attempt
// given back, anything else backs off.
func (d *Dispatcher) fail(ctx context.Context, t *model.EnrichmentTask, cause error) error {
	now := d.now()
	plan := resilience.Plan(cause, t.Attempts, t.MaxAttempts, now, d.cfg.RateLimitCooldown)

	t.LastError = store.TruncateError(cause.Error())
	t.UpdatedAt = now
	switch plan.Decision {
	case resilience.Fail:
		t.Status = model.TaskFailed
	case resilience.Cooldown:
		t.Status = model.TaskPending
		t.Attempts = max(t.Attempts-1, 0)
		t.NextAttemptAt = plan.NextAttemptAt
	case resilience.Retry:
		t.Status = model.TaskPending
		t.NextAttemptAt = plan.NextAttemptAt
	}

	zap.L().Warn("enrich: task attempt failed",
		zap.String("task_id", t.ID),
		zap.String("candidate_id", t.CandidateID),
		zap.String("type", string(t.Type)),
		zap.String("class", plan.Class.String()),
		zap.String("decision", plan.Decision.String()),
		zap.Int("attempts", t.Attempts),
		zap.Error(cause),
	)

	if err := d.store.UpdateTask(ctx, t); err != nil {
		return eris.Wrapf(err, "enrich: record failure of task %s", t.ID)
	}
	return d.refreshStatus(ctx, t.CandidateID)
}

// refreshStatus recomputes a candidate's aggregate enrichment status.
func (d *Dispatcher) refreshStatus(ctx context.Context, candidateID string) error {
	tasks, err := d.store.ListTasks(ctx, candidateID)
	if err != nil {
		return eris.Wrapf(err, "enrich: list tasks of %s", candidateID)
	}
	err = d.store.SetEnrichmentStatus(ctx, candidateID, AggregateStatus(tasks), d.now())
	return eris.Wrapf(err, "enrich: set status of %s", candidateID)
}

// ResetStuck returns in_progress tasks untouched for longer than olderThan
// to pending. Crashed workers leave their claimed batch in this state.
func (d *Dispatcher) ResetStuck(ctx context.Context, workspaceID string, olderThan time.Duration) (int, error) {
	now := d.now()
	n, err := d.store.ResetStuckTasks(ctx, workspaceID, now.Add(-olderThan), now)
	if err != nil {
		return 0, eris.Wrap(err, "enrich: reset stuck")
	}
	if n > 0 {
		zap.L().Warn("enrich: reset stuck tasks", zap.String("workspace_id", workspaceID), zap.Int("count", n))
	}
	return n, nil
}
