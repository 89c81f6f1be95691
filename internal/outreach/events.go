package outreach

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

// EventStore is the persistence engagement events touch.
type EventStore interface {
	GetEmail(ctx context.Context, id string) (*model.EmailQueueItem, error)
	GetSend(ctx context.Context, id string) (*model.CampaignSend, error)
	FindSendByMessageID(ctx context.Context, providerMessageID string) (*model.CampaignSend, error)
	UpdateSendEvents(ctx context.Context, s *model.CampaignSend) error
	AddSuppression(ctx context.Context, e model.SuppressionEntry) error
}

// Events applies tracking hits and relay notifications to campaign sends
// and the suppression list.
type Events struct {
	store EventStore
	now   func() time.Time
}

// NewEvents creates an Events recorder.
func NewEvents(st EventStore) *Events {
	return &Events{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (e *Events) SetClock(now func() time.Time) {
	e.now = now
}

// Opened records a pixel hit for the queue item emailID.
func (e *Events) Opened(ctx context.Context, emailID string) error {
	return e.onItem(ctx, emailID, model.EventOpened)
}

// Clicked records a tracked link click for the queue item emailID.
func (e *Events) Clicked(ctx context.Context, emailID string) error {
	return e.onItem(ctx, emailID, model.EventClicked)
}

// Unsubscribe suppresses the recipient of the queue item emailID.
func (e *Events) Unsubscribe(ctx context.Context, emailID string) error {
	item, err := e.store.GetEmail(ctx, emailID)
	if err != nil {
		return eris.Wrapf(err, "outreach: unsubscribe %s", emailID)
	}
	return e.suppress(ctx, item.WorkspaceID, item.To, model.SuppressUnsubscribed)
}

// Relay applies a delivery-side event reported for a provider message id.
// Bounces and complaints also suppress the address.
func (e *Events) Relay(ctx context.Context, providerMessageID string, ev model.SendEvent) error {
	send, err := e.store.FindSendByMessageID(ctx, providerMessageID)
	if err != nil {
		return eris.Wrapf(err, "outreach: %s event for %s", ev, providerMessageID)
	}
	if err := e.apply(ctx, send, ev); err != nil {
		return err
	}

	switch ev {
	case model.EventBounced:
		return e.suppress(ctx, send.WorkspaceID, send.ToAddress, model.SuppressBounced)
	case model.EventComplaint:
		return e.suppress(ctx, send.WorkspaceID, send.ToAddress, model.SuppressComplaint)
	}
	return nil
}

func (e *Events) onItem(ctx context.Context, emailID string, ev model.SendEvent) error {
	item, err := e.store.GetEmail(ctx, emailID)
	if err != nil {
		return eris.Wrapf(err, "outreach: %s event for %s", ev, emailID)
	}
	if item.CampaignSendID == "" {
		return nil
	}
	send, err := e.store.GetSend(ctx, item.CampaignSendID)
	if err != nil {
		return eris.Wrapf(err, "outreach: %s event for send %s", ev, item.CampaignSendID)
	}
	return e.apply(ctx, send, ev)
}

func (e *Events) apply(ctx context.Context, send *model.CampaignSend, ev model.SendEvent) error {
	if !send.Apply(ev, e.now()) {
		return nil
	}
	if err := e.store.UpdateSendEvents(ctx, send); err != nil {
		return eris.Wrapf(err, "outreach: record %s on send %s", ev, send.ID)
	}
	zap.L().Debug("outreach: send event",
		zap.String("send_id", send.ID),
		zap.String("event", string(ev)),
		zap.String("status", string(send.Status)),
	)
	return nil
}

func (e *Events) suppress(ctx context.Context, workspaceID, email string, reason model.SuppressionReason) error {
	err := e.store.AddSuppression(ctx, model.SuppressionEntry{
		WorkspaceID: workspaceID,
		Email:       email,
		Reason:      reason,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return eris.Wrapf(err, "outreach: suppress %s", reason)
	}
	zap.L().Info("outreach: address suppressed",
		zap.String("workspace_id", workspaceID),
		zap.String("reason", string(reason)),
	)
	return nil
}
