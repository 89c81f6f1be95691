package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

func scanSQLiteEmail(row rowScanner) (model.EmailQueueItem, error) {
	var e model.EmailQueueItem
	var headers []byte
	var tc timeCols
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.SenderAccountID, &e.CampaignSendID, &e.From, &e.To, &e.ReplyTo,
		&e.Subject, &e.HTMLBody, &e.TextBody, &headers, &e.Status, &e.Priority, &e.Attempts, &e.MaxAttempts,
		tc.at(&e.NextAttemptAt), tc.maybe(&e.ScheduledFor), &e.ProviderMessageID, tc.maybe(&e.SentAt),
		&e.LastError, tc.at(&e.CreatedAt), tc.at(&e.UpdatedAt))
	if err != nil {
		return e, err
	}
	if err := tc.decode(); err != nil {
		return e, err
	}
	e.Headers, err = decodeHeaders(headers)
	return e, err
}

func insertSQLiteEmail(ctx context.Context, q sqlQuerier, e *model.EmailQueueItem) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	headers, err := encodeHeaders(e.Headers)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO email_queue (`+emailColumns+`) VALUES (`+placeholders(22)+`)`,
		e.ID, e.WorkspaceID, e.SenderAccountID, e.CampaignSendID, e.From, e.To, e.ReplyTo,
		e.Subject, e.HTMLBody, e.TextBody, string(headers), string(e.Status), e.Priority, e.Attempts, e.MaxAttempts,
		ts(e.NextAttemptAt), tsPtr(e.ScheduledFor), e.ProviderMessageID, tsPtr(e.SentAt), e.LastError,
		ts(e.CreatedAt), ts(e.UpdatedAt),
	)
	return eris.Wrap(err, "sqlite: insert email")
}

func (s *SQLiteStore) EnqueueEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return insertSQLiteEmail(ctx, s.db, item)
}

func (s *SQLiteStore) ClaimEmails(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EmailQueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE email_queue SET status = 'in_progress', attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE workspace_id = ? AND status = 'pending' AND next_attempt_at <= ?
				AND (scheduled_for IS NULL OR scheduled_for <= ?)
			ORDER BY priority ASC, next_attempt_at ASC
			LIMIT ?
		)
		RETURNING `+emailColumns,
		ts(now), workspaceID, ts(now), ts(now), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim emails")
	}
	defer rows.Close() //nolint:errcheck

	var claimed []model.EmailQueueItem
	for rows.Next() {
		e, err := scanSQLiteEmail(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email")
		}
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate emails")
	}
	sortEmails(claimed)
	return claimed, nil
}

func updateSQLiteEmail(ctx context.Context, q sqlQuerier, e *model.EmailQueueItem) error {
	res, err := q.ExecContext(ctx,
		`UPDATE email_queue SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?,
			provider_message_id = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		string(e.Status), e.Attempts, ts(e.NextAttemptAt), TruncateError(e.LastError),
		e.ProviderMessageID, tsPtr(e.SentAt), ts(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email %s", e.ID)
	}
	return checkRowsAffected(res, "email", e.ID)
}

func (s *SQLiteStore) UpdateEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return updateSQLiteEmail(ctx, s.db, item)
}

func (s *SQLiteStore) FinishEmail(ctx context.Context, item *model.EmailQueueItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateSQLiteEmail(ctx, tx, item); err != nil {
			return err
		}
		if item.CampaignSendID == "" {
			return nil
		}

		switch item.Status {
		case model.EmailSent:
			var campaignID string
			err := tx.QueryRowContext(ctx,
				`UPDATE campaign_sends SET status = 'sent', provider_message_id = ?, sent_at = ?, updated_at = ?
				WHERE id = ? AND sent_at IS NULL
				RETURNING campaign_id`,
				item.ProviderMessageID, tsPtr(item.SentAt), ts(item.UpdatedAt), item.CampaignSendID,
			).Scan(&campaignID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "sqlite: mark send %s sent", item.CampaignSendID)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE campaigns SET total_sent = total_sent + 1 WHERE id = ?`, campaignID,
			)
			return eris.Wrapf(err, "sqlite: increment total_sent %s", campaignID)

		case model.EmailCancelled, model.EmailFailed:
			status := model.SendCancelled
			if item.Status == model.EmailFailed {
				status = model.SendFailed
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE campaign_sends SET status = ?, updated_at = ? WHERE id = ?`,
				string(status), ts(item.UpdatedAt), item.CampaignSendID,
			)
			return eris.Wrapf(err, "sqlite: mark send %s %s", item.CampaignSendID, status)
		}
		return nil
	})
}

func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*model.EmailQueueItem, error) {
	e, err := scanSQLiteEmail(s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM email_queue WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: email %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get email %s", id)
	}
	return &e, nil
}

func (s *SQLiteStore) CountPendingEmails(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM email_queue WHERE workspace_id = ? AND status = 'pending'`, workspaceID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count pending emails")
}

func (s *SQLiteStore) ResetStuckEmails(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error) {
	return s.resetStuck(ctx, "email_queue", workspaceID, staleBefore, now)
}

func (s *SQLiteStore) EmailCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error) {
	return s.queueCounts(ctx, "email_queue", workspaceID, staleBefore)
}

func (s *SQLiteStore) CreateSenderAccount(ctx context.Context, a *model.SenderAccount) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_accounts (id, workspace_id, from_address, smtp_host, smtp_port, username, password)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorkspaceID, a.FromAddress, a.SMTPHost, a.SMTPPort, a.Username, a.Password,
	)
	return eris.Wrap(err, "sqlite: insert sender account")
}

func (s *SQLiteStore) GetSenderAccount(ctx context.Context, id string) (*model.SenderAccount, error) {
	var a model.SenderAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, from_address, smtp_host, smtp_port, username, password
		FROM sender_accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.WorkspaceID, &a.FromAddress, &a.SMTPHost, &a.SMTPPort, &a.Username, &a.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: sender account %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sender account %s", id)
	}
	return &a, nil
}

func (s *SQLiteStore) IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM suppressions WHERE workspace_id = ? AND email_key = ?)`,
		workspaceID, model.EmailKey(email),
	).Scan(&ok)
	return ok, eris.Wrap(err, "sqlite: check suppression")
}

func (s *SQLiteStore) AddSuppression(ctx context.Context, e model.SuppressionEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppressions (workspace_id, email_key, reason, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, email_key) DO NOTHING`,
		e.WorkspaceID, model.EmailKey(e.Email), string(e.Reason), ts(e.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: add suppression")
}
