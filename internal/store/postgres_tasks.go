package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/db"
	"github.com/sells-group/recruit-cli/internal/model"
)

const taskColumns = `id, candidate_id, workspace_id, type, status, priority, attempts, max_attempts,
	next_attempt_at, last_error, provider, created_at, updated_at, completed_at`

const sqlCountPendingTasks = `SELECT count(*) FROM enrichment_tasks WHERE workspace_id = $1 AND status = 'pending'`

func scanPgTask(row pgx.Row) (model.EnrichmentTask, error) {
	var t model.EnrichmentTask
	err := row.Scan(&t.ID, &t.CandidateID, &t.WorkspaceID, &t.Type, &t.Status, &t.Priority,
		&t.Attempts, &t.MaxAttempts, &t.NextAttemptAt, &t.LastError, &t.Provider,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	return t, err
}

func collectPgTasks(rows pgx.Rows) ([]model.EnrichmentTask, error) {
	defer rows.Close()
	var out []model.EnrichmentTask
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tasks")
}

// InsertTasks inserts tasks, skipping any whose (candidate, type) already
// has an open task. It returns the number inserted.
func (s *PostgresStore) InsertTasks(ctx context.Context, tasks []model.EnrichmentTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	inserted := 0
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range tasks {
			t := &tasks[i]
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO enrichment_tasks (id, candidate_id, workspace_id, type, status, priority, attempts,
					max_attempts, next_attempt_at, last_error, provider, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT DO NOTHING`,
				t.ID, t.CandidateID, t.WorkspaceID, string(t.Type), string(t.Status), t.Priority, t.Attempts,
				t.MaxAttempts, t.NextAttemptAt, t.LastError, t.Provider, t.CreatedAt, t.UpdatedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert task %s", t.Type)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ClaimTasks selects up to limit due pending tasks ordered by
// (priority, next_attempt_at), flips them to in_progress and counts the
// attempt. Rows locked by a concurrent claimer are skipped.
func (s *PostgresStore) ClaimTasks(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EnrichmentTask, error) {
	var claimed []model.EnrichmentTask
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+taskColumns+` FROM enrichment_tasks
			WHERE workspace_id = $1 AND status = 'pending' AND next_attempt_at <= $2
			ORDER BY priority ASC, next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED`,
			workspaceID, now, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: select tasks")
		}
		claimed, err = collectPgTasks(rows)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
			claimed[i].Status = model.TaskInProgress
			claimed[i].Attempts++
			claimed[i].UpdatedAt = now
		}
		_, err = tx.Exec(ctx,
			`UPDATE enrichment_tasks SET status = 'in_progress', attempts = attempts + 1, updated_at = $1
			WHERE id = ANY($2)`,
			now, ids,
		)
		return eris.Wrap(err, "postgres: mark tasks in_progress")
	})
	if err != nil {
		return nil, err
	}
	sortTasks(claimed)
	return claimed, nil
}

func sortTasks(tasks []model.EnrichmentTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].NextAttemptAt.Before(tasks[j].NextAttemptAt)
	})
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *model.EnrichmentTask) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_tasks SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
			provider = $5, updated_at = $6, completed_at = $7
		WHERE id = $8`,
		string(t.Status), t.Attempts, t.NextAttemptAt, TruncateError(t.LastError),
		t.Provider, t.UpdatedAt, t.CompletedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update task %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: task %s", t.ID)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, candidateID string) ([]model.EnrichmentTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM enrichment_tasks WHERE candidate_id = $1 ORDER BY priority, created_at`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	return collectPgTasks(rows)
}

// FailPendingTasks fails every pending task of the given types and returns
// the distinct candidates affected.
func (s *PostgresStore) FailPendingTasks(ctx context.Context, workspaceID string, types []model.TaskType, reason string, now time.Time) ([]string, error) {
	if len(types) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE enrichment_tasks SET status = 'failed', last_error = $1, updated_at = $2
		WHERE workspace_id = $3 AND status = 'pending' AND type = ANY($4)
		RETURNING candidate_id`,
		TruncateError(reason), now, workspaceID, taskTypeStrings(types),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fail pending tasks")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed task")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate failed tasks")
}

func (s *PostgresStore) CountPendingTasks(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, sqlCountPendingTasks, workspaceID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count pending tasks")
}

func (s *PostgresStore) ResetStuckTasks(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_tasks SET status = 'pending', next_attempt_at = $1, updated_at = $1
		WHERE workspace_id = $2 AND status = 'in_progress' AND updated_at < $3`,
		now, workspaceID, staleBefore,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset stuck tasks")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) TaskCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	return s.queueCounts(ctx, "enrichment_tasks", workspaceID, staleBefore)
}

// queueCounts groups a queue table by status. table is always a constant.
func (s *PostgresStore) queueCounts(ctx context.Context, table, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	qc := QueueCounts{ByStatus: make(map[string]int)}
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*), count(*) FILTER (WHERE status = 'in_progress' AND updated_at < $2)
		FROM `+table+` WHERE workspace_id = $1 GROUP BY status`,
		workspaceID, staleBefore,
	)
	if err != nil {
		return qc, eris.Wrapf(err, "postgres: count %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n, stuck int
		if err := rows.Scan(&status, &n, &stuck); err != nil {
			return qc, eris.Wrapf(err, "postgres: scan %s counts", table)
		}
		qc.ByStatus[status] = n
		qc.Stuck += stuck
	}
	return qc, eris.Wrapf(rows.Err(), "postgres: iterate %s counts", table)
}
