package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

func scanSQLiteTask(row rowScanner) (model.EnrichmentTask, error) {
	var t model.EnrichmentTask
	var tc timeCols
	err := row.Scan(&t.ID, &t.CandidateID, &t.WorkspaceID, &t.Type, &t.Status, &t.Priority,
		&t.Attempts, &t.MaxAttempts, tc.at(&t.NextAttemptAt), &t.LastError, &t.Provider,
		tc.at(&t.CreatedAt), tc.at(&t.UpdatedAt), tc.maybe(&t.CompletedAt))
	if err != nil {
		return t, err
	}
	return t, tc.decode()
}

func collectSQLiteTasks(rows *sql.Rows) ([]model.EnrichmentTask, error) {
	defer rows.Close() //nolint:errcheck
	var out []model.EnrichmentTask
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tasks")
}

func (s *SQLiteStore) InsertTasks(ctx context.Context, tasks []model.EnrichmentTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range tasks {
			t := &tasks[i]
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO enrichment_tasks (id, candidate_id, workspace_id, type, status, priority, attempts,
					max_attempts, next_attempt_at, last_error, provider, created_at, updated_at)
				VALUES (`+placeholders(13)+`)
				ON CONFLICT DO NOTHING`,
				t.ID, t.CandidateID, t.WorkspaceID, string(t.Type), string(t.Status), t.Priority, t.Attempts,
				t.MaxAttempts, ts(t.NextAttemptAt), t.LastError, t.Provider, ts(t.CreatedAt), ts(t.UpdatedAt),
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert task %s", t.Type)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return eris.Wrap(err, "sqlite: rows affected")
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ClaimTasks selects and flips due pending tasks in one statement, which
// SQLite executes under its single writer lock.
func (s *SQLiteStore) ClaimTasks(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EnrichmentTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE enrichment_tasks SET status = 'in_progress', attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM enrichment_tasks
			WHERE workspace_id = ? AND status = 'pending' AND next_attempt_at <= ?
			ORDER BY priority ASC, next_attempt_at ASC
			LIMIT ?
		)
		RETURNING `+taskColumns,
		ts(now), workspaceID, ts(now), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim tasks")
	}
	claimed, err := collectSQLiteTasks(rows)
	if err != nil {
		return nil, err
	}
	sortTasks(claimed)
	return claimed, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *model.EnrichmentTask) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_tasks SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?,
			provider = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(t.Status), t.Attempts, ts(t.NextAttemptAt), TruncateError(t.LastError),
		t.Provider, ts(t.UpdatedAt), tsPtr(t.CompletedAt), t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update task %s", t.ID)
	}
	return checkRowsAffected(res, "task", t.ID)
}

func (s *SQLiteStore) ListTasks(ctx context.Context, candidateID string) ([]model.EnrichmentTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM enrichment_tasks WHERE candidate_id = ? ORDER BY priority, created_at`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	return collectSQLiteTasks(rows)
}

func (s *SQLiteStore) FailPendingTasks(ctx context.Context, workspaceID string, types []model.TaskType, reason string, now time.Time) ([]string, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := []any{TruncateError(reason), ts(now), workspaceID}
	for _, t := range taskTypeStrings(types) {
		args = append(args, t)
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE enrichment_tasks SET status = 'failed', last_error = ?, updated_at = ?
		WHERE workspace_id = ? AND status = 'pending' AND type IN (`+placeholders(len(types))+`)
		RETURNING candidate_id`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fail pending tasks")
	}
	defer rows.Close() //nolint:errcheck

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed task")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate failed tasks")
}

func (s *SQLiteStore) CountPendingTasks(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM enrichment_tasks WHERE workspace_id = ? AND status = 'pending'`, workspaceID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count pending tasks")
}

func (s *SQLiteStore) ResetStuckTasks(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error) {
	return s.resetStuck(ctx, "enrichment_tasks", workspaceID, staleBefore, now)
}

func (s *SQLiteStore) TaskCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	return s.queueCounts(ctx, "enrichment_tasks", workspaceID, staleBefore)
}

// resetStuck and queueCounts take a constant table name.
func (s *SQLiteStore) resetStuck(ctx context.Context, table, workspaceID string, staleBefore, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET status = 'pending', next_attempt_at = ?, updated_at = ?
		WHERE workspace_id = ? AND status = 'in_progress' AND updated_at < ?`,
		ts(now), ts(now), workspaceID, ts(staleBefore),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reset stuck %s", table)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) queueCounts(ctx context.Context, table, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	qc := QueueCounts{ByStatus: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*), sum(CASE WHEN status = 'in_progress' AND updated_at < ? THEN 1 ELSE 0 END)
		FROM `+table+` WHERE workspace_id = ? GROUP BY status`,
		ts(staleBefore), workspaceID,
	)
	if err != nil {
		return qc, eris.Wrapf(err, "sqlite: count %s", table)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var status string
		var n, stuck int
		if err := rows.Scan(&status, &n, &stuck); err != nil {
			return qc, eris.Wrapf(err, "sqlite: scan %s counts", table)
		}
		qc.ByStatus[status] = n
		qc.Stuck += stuck
	}
	return qc, eris.Wrapf(rows.Err(), "sqlite: iterate %s counts", table)
}
