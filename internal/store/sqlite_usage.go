package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

func (s *SQLiteStore) IncrementUsage(ctx context.Context, workspaceID, month, provider string, calls int64, costUSD float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (workspace_id, month, provider, calls, cost_usd) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, month, provider) DO UPDATE
		SET calls = calls + excluded.calls, cost_usd = cost_usd + excluded.cost_usd`,
		workspaceID, month, provider, calls, costUSD,
	)
	return eris.Wrapf(err, "sqlite: increment usage %s/%s", workspaceID, provider)
}

func (s *SQLiteStore) ProviderCalls(ctx context.Context, workspaceID, month, provider string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT calls FROM usage_records WHERE workspace_id = ? AND month = ? AND provider = ?`,
		workspaceID, month, provider,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, eris.Wrap(err, "sqlite: provider calls")
}

func (s *SQLiteStore) GetUsage(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, calls, cost_usd FROM usage_records WHERE workspace_id = ? AND month = ?`,
		workspaceID, month,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get usage")
	}
	defer rows.Close() //nolint:errcheck

	rec := &model.UsageRecord{WorkspaceID: workspaceID, Month: month, Calls: make(map[string]int64)}
	for rows.Next() {
		var provider string
		var calls int64
		var cost float64
		if err := rows.Scan(&provider, &calls, &cost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage")
		}
		rec.Calls[provider] = calls
		rec.CostUSD += cost
	}
	return rec, eris.Wrap(rows.Err(), "sqlite: iterate usage")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
