// Package campaign launches outreach campaigns and schedules their
// follow-up steps into the email queue.
package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

// Store is the persistence campaigns need.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error
	ListFollowUpCampaigns(ctx context.Context, workspaceID string) ([]string, error)
	FollowUpTargets(ctx context.Context, campaignID string, step int, sentBefore time.Time) ([]model.SendTarget, error)
	CreateSend(ctx context.Context, send *model.CampaignSend, item *model.EmailQueueItem) (bool, error)
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error)
}

// Service creates campaign sends.
type Service struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

// New creates a Service.
func New(st Store) *Service {
	return &Service{
		store:       st,
		maxAttempts: model.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxAttempts sets the send attempt budget of queued email.
func (s *Service) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Launch queues the initial send of the campaign to each candidate that
// has an address, is not suppressed and has no initial send yet, then
// marks a draft campaign active. Re-running it queues nothing new.
func (s *Service) Launch(ctx context.Context, campaignID string, candidateIDs []string) (int, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, eris.Wrapf(err, "campaign: load %s", campaignID)
	}
	if c.Status == model.CampaignCompleted {
		return 0, eris.Errorf("campaign: %s is completed", campaignID)
	}

	queued := 0
	for _, id := range candidateIDs {
		cand, err := s.store.GetCandidate(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("campaign: candidate not found", zap.String("candidate_id", id))
			continue
		}
		if err != nil {
			return queued, eris.Wrapf(err, "campaign: load candidate %s", id)
		}
		if cand.WorkspaceID != c.WorkspaceID || cand.Email == "" {
			continue
		}

		target := model.SendTarget{
			CandidateID:    cand.ID,
			WorkspaceID:    cand.WorkspaceID,
			Email:          cand.Email,
			FirstName:      cand.FirstName,
			LastName:       cand.LastName,
			CurrentTitle:   cand.CurrentTitle,
			CurrentCompany: cand.CurrentCompany,
			Location:       cand.Location,
		}
		ok, err := s.enqueue(ctx, c, target, 0, c.Subject, c.Body)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}

	if c.Status == model.CampaignDraft {
		if err := s.store.SetCampaignStatus(ctx, c.ID, model.CampaignActive); err != nil {
			return queued, eris.Wrapf(err, "campaign: activate %s", c.ID)
		}
	}

	zap.L().Info("campaign: launched",
		zap.String("campaign_id", c.ID),
		zap.Int("requested", len(candidateIDs)),
		zap.Int("queued", queued),
	)
	return queued, nil
}

// ScheduleFollowUps queues every follow-up step whose delay has elapsed
// since the candidate's initial send. Candidates that replied or bounced,
// are suppressed, or already have the step are skipped, so re-runs are
// safe. Campaigns that are not active schedule nothing.
func (s *Service) ScheduleFollowUps(ctx context.Context, campaignID string) (int, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, eris.Wrapf(err, "campaign: load %s", campaignID)
	}
	if c.Status != model.CampaignActive {
		return 0, nil
	}

	now := s.now()
	scheduled := 0
	for _, step := range c.Steps {
		cutoff := now.Add(-time.Duration(step.DelayDays) * 24 * time.Hour)
		targets, err := s.store.FollowUpTargets(ctx, c.ID, step.Step, cutoff)
		if err != nil {
			return scheduled, eris.Wrapf(err, "campaign: targets for %s step %d", c.ID, step.Step)
		}
		for _, target := range targets {
			ok, err := s.enqueue(ctx, c, target, step.Step, step.Subject, step.Body)
			if err != nil {
				return scheduled, err
			}
			if ok {
				scheduled++
			}
		}
	}

	if scheduled > 0 {
		zap.L().Info("campaign: follow-ups scheduled",
			zap.String("campaign_id", c.ID),
			zap.Int("scheduled", scheduled),
		)
	}
	return scheduled, nil
}

// ScheduleAll runs ScheduleFollowUps for every active campaign with
// follow-up steps. An empty workspaceID covers all workspaces. One
// campaign's failure is logged and does not stop the others.
func (s *Service) ScheduleAll(ctx context.Context, workspaceID string) (int, error) {
	ids, err := s.store.ListFollowUpCampaigns(ctx, workspaceID)
	if err != nil {
		return 0, eris.Wrap(err, "campaign: list follow-up campaigns")
	}
	total := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "campaign: schedule all")
		}
		n, err := s.ScheduleFollowUps(ctx, id)
		total += n
		if err != nil {
			zap.L().Error("campaign: follow-up scheduling failed", zap.String("campaign_id", id), zap.Error(err))
		}
	}
	return total, nil
}

// enqueue renders one step for target and creates its send and queue item.
// It reports false when the address is suppressed or the step already exists.
func (s *Service) enqueue(ctx context.Context, c *model.Campaign, target model.SendTarget, step int, subject, body string) (bool, error) {
	suppressed, err := s.store.IsSuppressed(ctx, c.WorkspaceID, target.Email)
	if err != nil {
		return false, eris.Wrapf(err, "campaign: suppression check for %s", target.CandidateID)
	}
	if suppressed {
		return false, nil
	}

	now := s.now()
	vars := VarsFor(target)
	send := &model.CampaignSend{
		CampaignID:   c.ID,
		CandidateID:  target.CandidateID,
		WorkspaceID:  c.WorkspaceID,
		FollowUpStep: step,
		Status:       model.SendPending,
		ToAddress:    target.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	item := &model.EmailQueueItem{
		WorkspaceID:     c.WorkspaceID,
		SenderAccountID: c.SenderAccountID,
		From:            c.FromAddress,
		To:              target.Email,
		ReplyTo:         c.ReplyTo,
		Subject:         Render(subject, vars),
		HTMLBody:        RenderHTML(body, vars),
		Status:          model.EmailPending,
		Priority:        step,
		MaxAttempts:     s.maxAttempts,
		NextAttemptAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.store.CreateSend(ctx, send, item)
	if err != nil {
		return false, eris.Wrapf(err, "campaign: create step %d send for %s", step, target.CandidateID)
	}
	return created, nil
}
