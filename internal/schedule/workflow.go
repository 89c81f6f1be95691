package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/recruit-cli/internal/model"
)

// SweepWorkflowID is the fixed id of the cron sweep, so starting it twice
// attaches to the running schedule.
const SweepWorkflowID = "recruit-sweep"

// SweepInput parameterizes one sweep run.
type SweepInput struct {
	WorkspaceIDs []string
	BatchSize    int
}

// WorkspaceSweep is one workspace's outcome within a sweep.
type WorkspaceSweep struct {
	WorkspaceID string
	Enrichment  model.BatchResult
	Email       model.BatchResult
	FollowUps   int
	Errors      []string
}

// SweepResult is the outcome of one sweep run.
type SweepResult struct {
	Workspaces []WorkspaceSweep
}

// Activities exposes the batch entry points as Temporal activities.
type Activities struct {
	Runners Runners
}

// EnrichmentBatch runs one enrichment batch for a workspace.
func (a *Activities) EnrichmentBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error) {
	if a.Runners.Enrichment == nil {
		return model.BatchResult{}, nil
	}
	res, err := a.Runners.Enrichment.ProcessBatch(ctx, workspaceID, batchSize)
	return res, eris.Wrapf(err, "schedule: enrichment batch %s", workspaceID)
}

// EmailBatch runs one email batch for a workspace.
func (a *Activities) EmailBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error) {
	if a.Runners.Email == nil {
		return model.BatchResult{}, nil
	}
	res, err := a.Runners.Email.ProcessBatch(ctx, workspaceID, batchSize)
	return res, eris.Wrapf(err, "schedule: email batch %s", workspaceID)
}

// FollowUps schedules due follow-ups for a workspace's active campaigns.
func (a *Activities) FollowUps(ctx context.Context, workspaceID string) (int, error) {
	if a.Runners.FollowUps == nil {
		return 0, nil
	}
	n, err := a.Runners.FollowUps.ScheduleAll(ctx, workspaceID)
	return n, eris.Wrapf(err, "schedule: follow-ups %s", workspaceID)
}

// SweepWorkflow runs the enrichment and email batches of every workspace in
// parallel, then schedules follow-ups. An activity failure is recorded on
// its workspace and never fails the run; the next run retries the work.
func SweepWorkflow(ctx workflow.Context, in SweepInput) (SweepResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	log := workflow.GetLogger(ctx)

	var a *Activities
	type pending struct {
		enrich workflow.Future
		email  workflow.Future
	}
	futures := make([]pending, len(in.WorkspaceIDs))
	for i, ws := range in.WorkspaceIDs {
		futures[i] = pending{
			enrich: workflow.ExecuteActivity(ctx, a.EnrichmentBatch, ws, in.BatchSize),
			email:  workflow.ExecuteActivity(ctx, a.EmailBatch, ws, in.BatchSize),
		}
	}

	out := SweepResult{Workspaces: make([]WorkspaceSweep, len(in.WorkspaceIDs))}
	for i, ws := range in.WorkspaceIDs {
		w := &out.Workspaces[i]
		w.WorkspaceID = ws
		if err := futures[i].enrich.Get(ctx, &w.Enrichment); err != nil {
			log.Error("enrichment batch failed", "workspace_id", ws, "error", err)
			w.Errors = append(w.Errors, err.Error())
		}
		if err := futures[i].email.Get(ctx, &w.Email); err != nil {
			log.Error("email batch failed", "workspace_id", ws, "error", err)
			w.Errors = append(w.Errors, err.Error())
		}
		if err := workflow.ExecuteActivity(ctx, a.FollowUps, ws).Get(ctx, &w.FollowUps); err != nil {
			log.Error("follow-up scheduling failed", "workspace_id", ws, "error", err)
			w.Errors = append(w.Errors, err.Error())
		}
	}
	return out, nil
}

// TemporalConfig is the connection and schedule of the Temporal worker.
type TemporalConfig struct {
	TaskQueue string
	Cron      string
}

// NewWorker registers the sweep workflow and activities on the task queue.
func NewWorker(c client.Client, cfg TemporalConfig, acts *Activities) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(SweepWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartSweep starts the cron sweep, or attaches to it when it is already
// running.
func StartSweep(ctx context.Context, c client.Client, cfg TemporalConfig, in SweepInput) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           SweepWorkflowID,
		TaskQueue:    cfg.TaskQueue,
		CronSchedule: cfg.Cron,
	}, SweepWorkflow, in)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: start sweep workflow")
	}
	return run, nil
}
