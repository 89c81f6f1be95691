package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/db"
	"github.com/sells-group/recruit-cli/internal/model"
)

const emailColumns = `id, workspace_id, sender_account_id, campaign_send_id, from_address, to_address, reply_to,
	subject, html_body, text_body, headers, status, priority, attempts, max_attempts, next_attempt_at,
	scheduled_for, provider_message_id, sent_at, last_error, created_at, updated_at`

const sqlCountPendingEmails = `SELECT count(*) FROM email_queue WHERE workspace_id = $1 AND status = 'pending'`

const sqlIsSuppressed = `SELECT EXISTS (SELECT 1 FROM suppressions WHERE workspace_id = $1 AND email_key = $2)`

func scanPgEmail(row pgx.Row) (model.EmailQueueItem, error) {
	var e model.EmailQueueItem
	var headers []byte
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.SenderAccountID, &e.CampaignSendID, &e.From, &e.To, &e.ReplyTo,
		&e.Subject, &e.HTMLBody, &e.TextBody, &headers, &e.Status, &e.Priority, &e.Attempts, &e.MaxAttempts,
		&e.NextAttemptAt, &e.ScheduledFor, &e.ProviderMessageID, &e.SentAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Headers, err = decodeHeaders(headers)
	return e, err
}

func insertPgEmail(ctx context.Context, q db.Querier, e *model.EmailQueueItem) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	headers, err := encodeHeaders(e.Headers)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx,
		`INSERT INTO email_queue (`+emailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		e.ID, e.WorkspaceID, e.SenderAccountID, e.CampaignSendID, e.From, e.To, e.ReplyTo,
		e.Subject, e.HTMLBody, e.TextBody, headers, string(e.Status), e.Priority, e.Attempts, e.MaxAttempts,
		e.NextAttemptAt, e.ScheduledFor, e.ProviderMessageID, e.SentAt, e.LastError, e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert email")
}

func (s *PostgresStore) EnqueueEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return insertPgEmail(ctx, s.pool, item)
}

// ClaimEmails claims due pending items whose scheduled_for has passed,
// ordered by (priority, next_attempt_at).
func (s *PostgresStore) ClaimEmails(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EmailQueueItem, error) {
	var claimed []model.EmailQueueItem
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+emailColumns+` FROM email_queue
			WHERE workspace_id = $1 AND status = 'pending' AND next_attempt_at <= $2
				AND (scheduled_for IS NULL OR scheduled_for <= $2)
			ORDER BY priority ASC, next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED`,
			workspaceID, now, limit,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: select emails")
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanPgEmail(rows)
			if err != nil {
				return eris.Wrap(err, "postgres: scan email")
			}
			claimed = append(claimed, e)
		}
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "postgres: iterate emails")
		}
		rows.Close()
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
			claimed[i].Status = model.EmailInProgress
			claimed[i].Attempts++
			claimed[i].UpdatedAt = now
		}
		_, err = tx.Exec(ctx,
			`UPDATE email_queue SET status = 'in_progress', attempts = attempts + 1, updated_at = $1
			WHERE id = ANY($2)`,
			now, ids,
		)
		return eris.Wrap(err, "postgres: mark emails in_progress")
	})
	if err != nil {
		return nil, err
	}
	sortEmails(claimed)
	return claimed, nil
}

func (s *PostgresStore) UpdateEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return updatePgEmail(ctx, s.pool, item)
}

func updatePgEmail(ctx context.Context, q db.Querier, e *model.EmailQueueItem) error {
	tag, err := q.Exec(ctx,
		`UPDATE email_queue SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
			provider_message_id = $5, sent_at = $6, updated_at = $7
		WHERE id = $8`,
		string(e.Status), e.Attempts, e.NextAttemptAt, TruncateError(e.LastError),
		e.ProviderMessageID, e.SentAt, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: email %s", e.ID)
	}
	return nil
}

// FinishEmail writes a terminal queue item and propagates its state to the
// parent campaign send. A first transition to sent also increments the
// campaign's total_sent in the same transaction.
func (s *PostgresStore) FinishEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := updatePgEmail(ctx, tx, item); err != nil {
			return err
		}
		if item.CampaignSendID == "" {
			return nil
		}

		switch item.Status {
		case model.EmailSent:
			var campaignID string
			err := tx.QueryRow(ctx,
				`UPDATE campaign_sends SET status = 'sent', provider_message_id = $1, sent_at = $2, updated_at = $3
				WHERE id = $4 AND sent_at IS NULL
				RETURNING campaign_id`,
				item.ProviderMessageID, item.SentAt, item.UpdatedAt, item.CampaignSendID,
			).Scan(&campaignID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "postgres: mark send %s sent", item.CampaignSendID)
			}
			_, err = tx.Exec(ctx,
				`UPDATE campaigns SET total_sent = total_sent + 1 WHERE id = $1`, campaignID,
			)
			return eris.Wrapf(err, "postgres: increment total_sent %s", campaignID)

		case model.EmailCancelled, model.EmailFailed:
			status := model.SendCancelled
			if item.Status == model.EmailFailed {
				status = model.SendFailed
			}
			_, err := tx.Exec(ctx,
				`UPDATE campaign_sends SET status = $1, updated_at = $2 WHERE id = $3`,
				string(status), item.UpdatedAt, item.CampaignSendID,
			)
			return eris.Wrapf(err, "postgres: mark send %s %s", item.CampaignSendID, status)
		}
		return nil
	})
}

func (s *PostgresStore) GetEmail(ctx context.Context, id string) (*model.EmailQueueItem, error) {
	e, err := scanPgEmail(s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM email_queue WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: email %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get email %s", id)
	}
	return &e, nil
}

func (s *PostgresStore) CountPendingEmails(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, sqlCountPendingEmails, workspaceID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count pending emails")
}

func (s *PostgresStore) ResetStuckEmails(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_queue SET status = 'pending', next_attempt_at = $1, updated_at = $1
		WHERE workspace_id = $2 AND status = 'in_progress' AND updated_at < $3`,
		now, workspaceID, staleBefore,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset stuck emails")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) EmailCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	return s.queueCounts(ctx, "email_queue", workspaceID, staleBefore)
}

func (s *PostgresStore) CreateSenderAccount(ctx context.Context, a *model.SenderAccount) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sender_accounts (id, workspace_id, from_address, smtp_host, smtp_port, username, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.WorkspaceID, a.FromAddress, a.SMTPHost, a.SMTPPort, a.Username, a.Password,
	)
	return eris.Wrap(err, "postgres: insert sender account")
}

func (s *PostgresStore) GetSenderAccount(ctx context.Context, id string) (*model.SenderAccount, error) {
	var a model.SenderAccount
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, from_address, smtp_host, smtp_port, username, password
		FROM sender_accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.WorkspaceID, &a.FromAddress, &a.SMTPHost, &a.SMTPPort, &a.Username, &a.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: sender account %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sender account %s", id)
	}
	return &a, nil
}

func (s *PostgresStore) IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, sqlIsSuppressed, workspaceID, model.EmailKey(email)).Scan(&ok)
	return ok, eris.Wrap(err, "postgres: check suppression")
}

func (s *PostgresStore) AddSuppression(ctx context.Context, e model.SuppressionEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO suppressions (workspace_id, email_key, reason, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, email_key) DO NOTHING`,
		e.WorkspaceID, model.EmailKey(e.Email), string(e.Reason), e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: add suppression")
}
