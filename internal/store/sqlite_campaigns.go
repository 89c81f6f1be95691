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

func scanSQLiteSend(row rowScanner) (model.CampaignSend, error) {
	var s model.CampaignSend
	var tc timeCols
	err := row.Scan(&s.ID, &s.CampaignID, &s.CandidateID, &s.WorkspaceID, &s.FollowUpStep, &s.Status, &s.ToAddress,
		&s.ProviderMessageID, tc.maybe(&s.SentAt), tc.maybe(&s.OpenedAt), tc.maybe(&s.ClickedAt),
		tc.maybe(&s.RepliedAt), tc.maybe(&s.BouncedAt), tc.at(&s.CreatedAt), tc.at(&s.UpdatedAt))
	if err != nil {
		return s, err
	}
	return s, tc.decode()
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO campaigns (id, workspace_id, name, status, sender_account_id, from_address, reply_to,
				subject, body, total_sent, created_at)
			VALUES (`+placeholders(11)+`)`,
			c.ID, c.WorkspaceID, c.Name, string(c.Status), c.SenderAccountID, c.FromAddress, c.ReplyTo,
			c.Subject, c.Body, c.TotalSent, ts(c.CreatedAt),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert campaign")
		}
		for i := range c.Steps {
			st := &c.Steps[i]
			st.CampaignID = c.ID
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO campaign_steps (campaign_id, step, delay_days, subject, body) VALUES (?, ?, ?, ?, ?)`,
				st.CampaignID, st.Step, st.DelayDays, st.Subject, st.Body,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert campaign step %d", st.Step)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	var tc timeCols
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, name, status, sender_account_id, from_address, reply_to, subject, body,
			total_sent, created_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Status, &c.SenderAccountID, &c.FromAddress, &c.ReplyTo,
		&c.Subject, &c.Body, &c.TotalSent, tc.at(&c.CreatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	if err := tc.decode(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, step, delay_days, subject, body FROM campaign_steps
		WHERE campaign_id = ? ORDER BY step`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list steps %s", id)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var st model.FollowUpStep
		if err := rows.Scan(&st.CampaignID, &st.Step, &st.DelayDays, &st.Subject, &st.Body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		c.Steps = append(c.Steps, st)
	}
	return &c, eris.Wrap(rows.Err(), "sqlite: iterate steps")
}

func (s *SQLiteStore) SetCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set campaign status %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) ListFollowUpCampaigns(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id FROM campaigns c
		WHERE c.status = 'active' AND (? = '' OR c.workspace_id = ?)
			AND EXISTS (SELECT 1 FROM campaign_steps st WHERE st.campaign_id = c.id)
		ORDER BY c.created_at`,
		workspaceID, workspaceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list follow-up campaigns")
	}
	defer rows.Close() //nolint:errcheck
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate campaigns")
}

func (s *SQLiteStore) FollowUpTargets(ctx context.Context, campaignID string, step int, sentBefore time.Time) ([]model.SendTarget, error) {
	statuses := sendStatusStrings(model.FollowUpEligible)
	args := []any{campaignID}
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, ts(sentBefore), step)

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.workspace_id, c.email, c.first_name, c.last_name, c.current_title, c.current_company, c.location
		FROM campaign_sends s
		JOIN candidates c ON c.id = s.candidate_id
		WHERE s.campaign_id = ? AND s.follow_up_step = 0
			AND s.status IN (`+placeholders(len(statuses))+`) AND s.sent_at IS NOT NULL AND s.sent_at <= ?
			AND NOT EXISTS (SELECT 1 FROM campaign_sends f
				WHERE f.campaign_id = s.campaign_id AND f.candidate_id = s.candidate_id
					AND f.follow_up_step = ? AND f.status <> 'cancelled')
			AND NOT EXISTS (SELECT 1 FROM campaign_sends r
				WHERE r.campaign_id = s.campaign_id AND r.candidate_id = s.candidate_id
					AND (r.replied_at IS NOT NULL OR r.bounced_at IS NOT NULL))
		ORDER BY s.sent_at, c.id`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: follow-up targets")
	}
	defer rows.Close() //nolint:errcheck
	var out []model.SendTarget
	for rows.Next() {
		var t model.SendTarget
		if err := rows.Scan(&t.CandidateID, &t.WorkspaceID, &t.Email, &t.FirstName, &t.LastName,
			&t.CurrentTitle, &t.CurrentCompany, &t.Location); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan follow-up target")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate follow-up targets")
}

func (s *SQLiteStore) CreateSend(ctx context.Context, send *model.CampaignSend, item *model.EmailQueueItem) (bool, error) {
	if send.ID == "" {
		send.ID = uuid.New().String()
	}
	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO campaign_sends (id, campaign_id, candidate_id, workspace_id, follow_up_step, status,
				to_address, created_at, updated_at)
			VALUES (`+placeholders(9)+`)
			ON CONFLICT DO NOTHING`,
			send.ID, send.CampaignID, send.CandidateID, send.WorkspaceID, send.FollowUpStep, string(send.Status),
			send.ToAddress, ts(send.CreatedAt), ts(send.UpdatedAt),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert send")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return nil
		}
		item.CampaignSendID = send.ID
		if err := insertSQLiteEmail(ctx, tx, item); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *SQLiteStore) GetSend(ctx context.Context, id string) (*model.CampaignSend, error) {
	return s.getSend(ctx, `id = ?`, id)
}

func (s *SQLiteStore) FindSendByMessageID(ctx context.Context, providerMessageID string) (*model.CampaignSend, error) {
	if providerMessageID == "" {
		return nil, eris.Wrap(ErrNotFound, "sqlite: empty message id")
	}
	return s.getSend(ctx, `provider_message_id = ?`, providerMessageID)
}

func (s *SQLiteStore) getSend(ctx context.Context, where, arg string) (*model.CampaignSend, error) {
	send, err := scanSQLiteSend(s.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM campaign_sends WHERE `+where+` LIMIT 1`, arg,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: send %s", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get send %s", arg)
	}
	return &send, nil
}

func (s *SQLiteStore) UpdateSendEvents(ctx context.Context, send *model.CampaignSend) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaign_sends SET status = ?, opened_at = ?, clicked_at = ?, replied_at = ?,
			bounced_at = ?, updated_at = ?
		WHERE id = ?`,
		string(send.Status), tsPtr(send.OpenedAt), tsPtr(send.ClickedAt), tsPtr(send.RepliedAt),
		tsPtr(send.BouncedAt), ts(send.UpdatedAt), send.ID,
	)
	return eris.Wrapf(err, "sqlite: update send %s", send.ID)
}

func (s *SQLiteStore) ListSends(ctx context.Context, campaignID string) ([]model.CampaignSend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sendColumns+` FROM campaign_sends WHERE campaign_id = ?
		ORDER BY follow_up_step, created_at`, campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sends")
	}
	defer rows.Close() //nolint:errcheck
	var out []model.CampaignSend
	for rows.Next() {
		send, err := scanSQLiteSend(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan send")
		}
		out = append(out, send)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sends")
}
