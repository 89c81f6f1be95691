// Package outreach delivers the outbound email queue and records the
// engagement events that come back from recipients and relays.
package outreach

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/resilience"
	"github.com/sells-group/recruit-cli/internal/store"
	"github.com/sells-group/recruit-cli/pkg/mailer"
)

// suppressedReason is the last_error of a queue item cancelled by the
// suppression list.
const suppressedReason = "recipient is on the suppression list"

// Store is the persistence the email dispatcher needs.
type Store interface {
	ClaimEmails(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EmailQueueItem, error)
	UpdateEmail(ctx context.Context, item *model.EmailQueueItem) error
	FinishEmail(ctx context.Context, item *model.EmailQueueItem) error
	CountPendingEmails(ctx context.Context, workspaceID string) (int, error)
	ResetStuckEmails(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error)
	IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error)
	GetSenderAccount(ctx context.Context, id string) (*model.SenderAccount, error)
}

// Ledger meters relay calls.
type Ledger interface {
	Reserve(ctx context.Context, workspaceID, provider string) error
	Record(ctx context.Context, workspaceID, provider string, extraCost float64) error
}

// TransportFunc resolves the transport a sender account sends through.
type TransportFunc func(acct *model.SenderAccount) mailer.Sender

// SMTPTransport sends through the account's own SMTP relay.
func SMTPTransport(acct *model.SenderAccount) mailer.Sender {
	return mailer.NewSMTP(mailer.Account{
		Host:     acct.SMTPHost,
		Port:     acct.SMTPPort,
		Username: acct.Username,
		Password: acct.Password,
	})
}

// Config tunes the dispatcher.
type Config struct {
	BatchSize         int
	RateLimitCooldown time.Duration
}

// Dispatcher claims and sends queued email one batch at a time.
type Dispatcher struct {
	store     Store
	transport TransportFunc
	tracker   *Tracker
	ledger    Ledger
	cfg       Config
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil tracker sends bodies as queued;
// a nil ledger disables metering.
func NewDispatcher(st Store, transport TransportFunc, tracker *Tracker, ledger Ledger, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = resilience.DefaultCooldown
	}
	return &Dispatcher{
		store:     st,
		transport: transport,
		tracker:   tracker,
		ledger:    ledger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// ProcessBatch claims up to batchSize due items of the workspace in
// (priority, next_attempt_at) order and sends them. Suppressed recipients
// are cancelled before any relay call. Once a sender account is rate
// limited, its remaining items in the batch are released untouched.
func (d *Dispatcher) ProcessBatch(ctx context.Context, workspaceID string, batchSize int) (model.BatchResult, error) {
	var res model.BatchResult
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}

	items, err := d.store.ClaimEmails(ctx, workspaceID, batchSize, d.now())
	if err != nil {
		return res, eris.Wrap(err, "outreach: claim emails")
	}

	throttled := make(map[string]bool)
	for i := range items {
		item := &items[i]
		if throttled[item.SenderAccountID] {
			if err := d.release(ctx, item); err != nil {
				return res, err
			}
			continue
		}

		res.Processed++
		ok, err := d.process(ctx, item, throttled)
		if err != nil {
			return res, err
		}
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	remaining, err := d.store.CountPendingEmails(ctx, workspaceID)
	if err != nil {
		return res, eris.Wrap(err, "outreach: count pending")
	}
	res.Remaining = remaining

	zap.L().Info("outreach: batch complete",
		zap.String("workspace_id", workspaceID),
		zap.Int("claimed", len(items)),
		zap.Int("processed", res.Processed),
		zap.Int("sent", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("remaining", res.Remaining),
	)
	return res, nil
}

func (d *Dispatcher) release(ctx context.Context, item *model.EmailQueueItem) error {
	item.Status = model.EmailPending
	item.Attempts = max(item.Attempts-1, 0)
	item.UpdatedAt = d.now()
	if err := d.store.UpdateEmail(ctx, item); err != nil {
		return eris.Wrapf(err, "outreach: release email %s", item.ID)
	}
	return nil
}

// process sends one claimed item and reports whether it was sent.
func (d *Dispatcher) process(ctx context.Context, item *model.EmailQueueItem, throttled map[string]bool) (bool, error) {
	suppressed, err := d.store.IsSuppressed(ctx, item.WorkspaceID, item.To)
	if err != nil {
		return false, eris.Wrapf(err, "outreach: suppression check for %s", item.ID)
	}
	if suppressed {
		return false, d.cancel(ctx, item)
	}

	acct, err := d.store.GetSenderAccount(ctx, item.SenderAccountID)
	if errors.Is(err, store.ErrNotFound) {
		return false, d.fail(ctx, item, resilience.NewPermanent("", eris.Wrapf(err, "sender account %s", item.SenderAccountID)))
	}
	if err != nil {
		return false, eris.Wrapf(err, "outreach: load sender account %s", item.SenderAccountID)
	}

	receipt, sendErr := d.send(ctx, acct, item)
	if sendErr != nil {
		if resilience.Classify(sendErr) == resilience.RateLimited {
			throttled[item.SenderAccountID] = true
		}
		return false, d.fail(ctx, item, sendErr)
	}

	now := d.now()
	sentAt := receipt.AcceptedAt
	if sentAt.IsZero() {
		sentAt = now
	}
	item.Status = model.EmailSent
	item.ProviderMessageID = receipt.MessageID
	item.SentAt = &sentAt
	item.LastError = ""
	item.UpdatedAt = now
	if err := d.store.FinishEmail(ctx, item); err != nil {
		return false, eris.Wrapf(err, "outreach: finish email %s", item.ID)
	}
	return true, nil
}

// send instruments the body, reserves ledger capacity and hands the message
// to the account's transport.
func (d *Dispatcher) send(ctx context.Context, acct *model.SenderAccount, item *model.EmailQueueItem) (*mailer.Receipt, error) {
	msg := mailer.Message{
		From:    item.From,
		To:      item.To,
		ReplyTo: item.ReplyTo,
		Subject: item.Subject,
		HTML:    item.HTMLBody,
		Text:    item.TextBody,
		Headers: make(map[string]string, len(item.Headers)+2),
	}
	for k, v := range item.Headers {
		msg.Headers[k] = v
	}
	if d.tracker != nil {
		body, headers, err := d.tracker.Instrument(item.ID, item.HTMLBody)
		if err != nil {
			return nil, resilience.NewPermanent("", err)
		}
		msg.HTML = body
		for k, v := range headers {
			msg.Headers[k] = v
		}
	}

	if d.ledger != nil {
		if err := d.ledger.Reserve(ctx, item.WorkspaceID, model.ProviderSMTP); err != nil {
			return nil, err
		}
	}
	receipt, err := d.transport(acct).Send(ctx, msg)
	if d.ledger != nil && resilience.Classify(err) != resilience.RateLimited {
		if rerr := d.ledger.Record(ctx, item.WorkspaceID, model.ProviderSMTP, 0); rerr != nil {
			zap.L().Error("outreach: record usage failed",
				zap.String("workspace_id", item.WorkspaceID),
				zap.Error(rerr),
			)
		}
	}
	return receipt, err
}

// cancel is the suppression gate: the item and its campaign send are
// cancelled and never retried.
func (d *Dispatcher) cancel(ctx context.Context, item *model.EmailQueueItem) error {
	item.Status = model.EmailCancelled
	item.LastError = suppressedReason
	item.UpdatedAt = d.now()
	zap.L().Info("outreach: recipient suppressed",
		zap.String("email_id", item.ID),
		zap.String("workspace_id", item.WorkspaceID),
	)
	if err := d.store.FinishEmail(ctx, item); err != nil {
		return eris.Wrapf(err, "outreach: cancel email %s", item.ID)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, item *model.EmailQueueItem, cause error) error {
	now := d.now()
	// Rate limits cool down for the configured window, unless the error
	// carries its own RetryAt (monthly quota exhaustion), which wins.
	plan := resilience.Plan(cause, item.Attempts, item.MaxAttempts, now, d.cfg.RateLimitCooldown)

	item.LastError = store.TruncateError(cause.Error())
	item.UpdatedAt = now
	switch plan.Decision {
	case resilience.Fail:
		item.Status = model.EmailFailed
	case resilience.Cooldown:
		item.Status = model.EmailPending
		item.Attempts = max(item.Attempts-1, 0)
		item.NextAttemptAt = plan.NextAttemptAt
	case resilience.Retry:
		item.Status = model.EmailPending
		item.NextAttemptAt = plan.NextAttemptAt
	}

	zap.L().Warn("outreach: send attempt failed",
		zap.String("email_id", item.ID),
		zap.String("workspace_id", item.WorkspaceID),
		zap.String("class", plan.Class.String()),
		zap.String("decision", plan.Decision.String()),
		zap.Int("attempts", item.Attempts),
		zap.Error(cause),
	)

	var err error
	if item.Status == model.EmailFailed {
		err = d.store.FinishEmail(ctx, item)
	} else {
		err = d.store.UpdateEmail(ctx, item)
	}
	return eris.Wrapf(err, "outreach: record failure of email %s", item.ID)
}

// ResetStuck returns in_progress items untouched for longer than olderThan
// to pending.
func (d *Dispatcher) ResetStuck(ctx context.Context, workspaceID string, olderThan time.Duration) (int, error) {
	now := d.now()
	n, err := d.store.ResetStuckEmails(ctx, workspaceID, now.Add(-olderThan), now)
	if err != nil {
		return 0, eris.Wrap(err, "outreach: reset stuck")
	}
	if n > 0 {
		zap.L().Warn("outreach: reset stuck emails", zap.String("workspace_id", workspaceID), zap.Int("count", n))
	}
	return n, nil
}
