package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

const sqlIncrementUsage = `INSERT INTO usage_records (workspace_id, month, provider, calls, cost_usd)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (workspace_id, month, provider) DO UPDATE
SET calls = usage_records.calls + EXCLUDED.calls, cost_usd = usage_records.cost_usd + EXCLUDED.cost_usd`

// IncrementUsage adds calls and cost to the (workspace, month, provider)
// counter in a single statement, so concurrent increments never lose counts.
func (s *PostgresStore) IncrementUsage(ctx context.Context, workspaceID, month, provider string, calls int64, costUSD float64) error {
	_, err := s.pool.Exec(ctx, sqlIncrementUsage, workspaceID, month, provider, calls, costUSD)
	return eris.Wrapf(err, "postgres: increment usage %s/%s", workspaceID, provider)
}

func (s *PostgresStore) ProviderCalls(ctx context.Context, workspaceID, month, provider string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT calls FROM usage_records WHERE workspace_id = $1 AND month = $2 AND provider = $3`,
		workspaceID, month, provider,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, eris.Wrap(err, "postgres: provider calls")
}

func (s *PostgresStore) GetUsage(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, calls, cost_usd FROM usage_records WHERE workspace_id = $1 AND month = $2`,
		workspaceID, month,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get usage")
	}
	defer rows.Close()

	rec := &model.UsageRecord{WorkspaceID: workspaceID, Month: month, Calls: make(map[string]int64)}
	for rows.Next() {
		var provider string
		var calls int64
		var cost float64
		if err := rows.Scan(&provider, &calls, &cost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage")
		}
		rec.Calls[provider] = calls
		rec.CostUSD += cost
	}
	return rec, eris.Wrap(rows.Err(), "postgres: iterate usage")
}
