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

const sendColumns = `id, campaign_id, candidate_id, workspace_id, follow_up_step, status, to_address,
	provider_message_id, sent_at, opened_at, clicked_at, replied_at, bounced_at, created_at, updated_at`

func scanPgSend(row pgx.Row) (model.CampaignSend, error) {
	var s model.CampaignSend
	err := row.Scan(&s.ID, &s.CampaignID, &s.CandidateID, &s.WorkspaceID, &s.FollowUpStep, &s.Status, &s.ToAddress,
		&s.ProviderMessageID, &s.SentAt, &s.OpenedAt, &s.ClickedAt, &s.RepliedAt, &s.BouncedAt, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO campaigns (id, workspace_id, name, status, sender_account_id, from_address, reply_to,
				subject, body, total_sent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.WorkspaceID, c.Name, string(c.Status), c.SenderAccountID, c.FromAddress, c.ReplyTo,
			c.Subject, c.Body, c.TotalSent, c.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert campaign")
		}
		for i := range c.Steps {
			st := &c.Steps[i]
			st.CampaignID = c.ID
			if _, err := tx.Exec(ctx,
				`INSERT INTO campaign_steps (campaign_id, step, delay_days, subject, body) VALUES ($1, $2, $3, $4, $5)`,
				st.CampaignID, st.Step, st.DelayDays, st.Subject, st.Body,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert campaign step %d", st.Step)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, name, status, sender_account_id, from_address, reply_to, subject, body,
			total_sent, created_at
		FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Status, &c.SenderAccountID, &c.FromAddress, &c.ReplyTo,
		&c.Subject, &c.Body, &c.TotalSent, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT campaign_id, step, delay_days, subject, body FROM campaign_steps
		WHERE campaign_id = $1 ORDER BY step`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list steps %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var st model.FollowUpStep
		if err := rows.Scan(&st.CampaignID, &st.Step, &st.DelayDays, &st.Subject, &st.Body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		c.Steps = append(c.Steps, st)
	}
	return &c, eris.Wrap(rows.Err(), "postgres: iterate steps")
}

func (s *PostgresStore) SetCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2`, string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set campaign status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	return nil
}

// ListFollowUpCampaigns returns active campaigns that define follow-up
// steps. An empty workspaceID lists all workspaces.
func (s *PostgresStore) ListFollowUpCampaigns(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id FROM campaigns c
		WHERE c.status = 'active' AND ($1::text = '' OR c.workspace_id = $1)
			AND EXISTS (SELECT 1 FROM campaign_steps st WHERE st.campaign_id = c.id)
		ORDER BY c.created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list follow-up campaigns")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate campaigns")
}

// FollowUpTargets returns candidates whose initial send is in a
// follow-up-eligible status, was sent before sentBefore, has no send for
// step yet, and has never replied or bounced within the campaign.
func (s *PostgresStore) FollowUpTargets(ctx context.Context, campaignID string, step int, sentBefore time.Time) ([]model.SendTarget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.workspace_id, c.email, c.first_name, c.last_name, c.current_title, c.current_company, c.location
		FROM campaign_sends s
		JOIN candidates c ON c.id = s.candidate_id
		WHERE s.campaign_id = $1 AND s.follow_up_step = 0
			AND s.status = ANY($2) AND s.sent_at IS NOT NULL AND s.sent_at <= $3
			AND NOT EXISTS (SELECT 1 FROM campaign_sends f
				WHERE f.campaign_id = s.campaign_id AND f.candidate_id = s.candidate_id
					AND f.follow_up_step = $4 AND f.status <> 'cancelled')
			AND NOT EXISTS (SELECT 1 FROM campaign_sends r
				WHERE r.campaign_id = s.campaign_id AND r.candidate_id = s.candidate_id
					AND (r.replied_at IS NOT NULL OR r.bounced_at IS NOT NULL))
		ORDER BY s.sent_at, c.id`,
		campaignID, sendStatusStrings(model.FollowUpEligible), sentBefore, step,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: follow-up targets")
	}
	defer rows.Close()
	var out []model.SendTarget
	for rows.Next() {
		var t model.SendTarget
		if err := rows.Scan(&t.CandidateID, &t.WorkspaceID, &t.Email, &t.FirstName, &t.LastName,
			&t.CurrentTitle, &t.CurrentCompany, &t.Location); err != nil {
			return nil, eris.Wrap(err, "postgres: scan follow-up target")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate follow-up targets")
}

// CreateSend inserts a campaign send and its queue item atomically. It
// returns false without writing anything when a non-cancelled send already
// exists for the (campaign, candidate, step).
func (s *PostgresStore) CreateSend(ctx context.Context, send *model.CampaignSend, item *model.EmailQueueItem) (bool, error) {
	if send.ID == "" {
		send.ID = uuid.New().String()
	}
	created := false
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO campaign_sends (id, campaign_id, candidate_id, workspace_id, follow_up_step, status,
				to_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING`,
			send.ID, send.CampaignID, send.CandidateID, send.WorkspaceID, send.FollowUpStep, string(send.Status),
			send.ToAddress, send.CreatedAt, send.UpdatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert send")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		item.CampaignSendID = send.ID
		if err := insertPgEmail(ctx, tx, item); err != nil {
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

func (s *PostgresStore) GetSend(ctx context.Context, id string) (*model.CampaignSend, error) {
	return s.getSend(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindSendByMessageID(ctx context.Context, providerMessageID string) (*model.CampaignSend, error) {
	if providerMessageID == "" {
		return nil, eris.Wrap(ErrNotFound, "postgres: empty message id")
	}
	return s.getSend(ctx, `provider_message_id = $1`, providerMessageID)
}

func (s *PostgresStore) getSend(ctx context.Context, where, arg string) (*model.CampaignSend, error) {
	send, err := scanPgSend(s.pool.QueryRow(ctx,
		`SELECT `+sendColumns+` FROM campaign_sends WHERE `+where+` LIMIT 1`, arg,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: send %s", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get send %s", arg)
	}
	return &send, nil
}

func (s *PostgresStore) UpdateSendEvents(ctx context.Context, send *model.CampaignSend) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE campaign_sends SET status = $1, opened_at = $2, clicked_at = $3, replied_at = $4,
			bounced_at = $5, updated_at = $6
		WHERE id = $7`,
		string(send.Status), send.OpenedAt, send.ClickedAt, send.RepliedAt, send.BouncedAt, send.UpdatedAt, send.ID,
	)
	return eris.Wrapf(err, "postgres: update send %s", send.ID)
}

func (s *PostgresStore) ListSends(ctx context.Context, campaignID string) ([]model.CampaignSend, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sendColumns+` FROM campaign_sends WHERE campaign_id = $1
		ORDER BY follow_up_step, created_at`, campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sends")
	}
	defer rows.Close()
	var out []model.CampaignSend
	for rows.Next() {
		send, err := scanPgSend(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan send")
		}
		out = append(out, send)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sends")
}
