package model

import "time"

// EmailStatus is the lifecycle state of an outbound queue item.
type EmailStatus string

const (
	EmailPending    EmailStatus = "pending"
	EmailInProgress EmailStatus = "in_progress"
	EmailSent       EmailStatus = "sent"
	EmailFailed     EmailStatus = "failed"
	EmailCancelled  EmailStatus = "cancelled"
)

// EmailQueueItem is one outbound send attempt.
type EmailQueueItem struct {
	ID                string            `json:"id"`
	WorkspaceID       string            `json:"workspace_id"`
	SenderAccountID   string            `json:"sender_account_id"`
	CampaignSendID    string            `json:"campaign_send_id,omitempty"`
	From              string            `json:"from"`
	To                string            `json:"to"`
	ReplyTo           string            `json:"reply_to,omitempty"`
	Subject           string            `json:"subject"`
	HTMLBody          string            `json:"html_body"`
	TextBody          string            `json:"text_body,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Status            EmailStatus       `json:"status"`
	Priority          int               `json:"priority"`
	Attempts          int               `json:"attempts"`
	MaxAttempts       int               `json:"max_attempts"`
	NextAttemptAt     time.Time         `json:"next_attempt_at"`
	ScheduledFor      *time.Time        `json:"scheduled_for,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	LastError         string            `json:"last_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// SendStatus is the lifecycle state of a campaign send.
type SendStatus string

const (
	SendPending   SendStatus = "pending"
	SendSent      SendStatus = "sent"
	SendDelivered SendStatus = "delivered"
	SendOpened    SendStatus = "opened"
	SendClicked   SendStatus = "clicked"
	SendReplied   SendStatus = "replied"
	SendBounced   SendStatus = "bounced"
	SendFailed    SendStatus = "failed"
	SendCancelled SendStatus = "cancelled"
)

// FollowUpEligible lists the send statuses a follow-up may be scheduled after.
var FollowUpEligible = []SendStatus{SendSent, SendDelivered, SendOpened, SendClicked}

// CampaignSend tracks one candidate's email for one campaign step.
// At most one non-cancelled send exists per (campaign, candidate, step).
type CampaignSend struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id"`
	CandidateID       string     `json:"candidate_id"`
	WorkspaceID       string     `json:"workspace_id"`
	FollowUpStep      int        `json:"follow_up_step"`
	Status            SendStatus `json:"status"`
	ToAddress         string     `json:"to_address"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
	ClickedAt         *time.Time `json:"clicked_at,omitempty"`
	RepliedAt         *time.Time `json:"replied_at,omitempty"`
	BouncedAt         *time.Time `json:"bounced_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is an outreach sequence: an initial template plus follow-up steps.
type Campaign struct {
	ID              string         `json:"id"`
	WorkspaceID     string         `json:"workspace_id"`
	Name            string         `json:"name"`
	Status          CampaignStatus `json:"status"`
	SenderAccountID string         `json:"sender_account_id"`
	FromAddress     string         `json:"from_address"`
	ReplyTo         string         `json:"reply_to,omitempty"`
	Subject         string         `json:"subject"`
	Body            string         `json:"body"`
	TotalSent       int            `json:"total_sent"`
	Steps           []FollowUpStep `json:"steps,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// FollowUpStep is the Nth email of a sequence, sent DelayDays after the initial send.
type FollowUpStep struct {
	CampaignID string `json:"campaign_id"`
	Step       int    `json:"step"`
	DelayDays  int    `json:"delay_days"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// SuppressionReason records why an address must not be emailed.
type SuppressionReason string

const (
	SuppressUnsubscribed SuppressionReason = "unsubscribed"
	SuppressBounced      SuppressionReason = "bounced"
	SuppressComplaint    SuppressionReason = "complaint"
	SuppressManual       SuppressionReason = "manual"
)

// SuppressionEntry is one address on a workspace's suppression list.
type SuppressionEntry struct {
	WorkspaceID string            `json:"workspace_id"`
	Email       string            `json:"email"`
	Reason      SuppressionReason `json:"reason"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SenderAccount holds the SMTP credentials a workspace sends through.
type SenderAccount struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	FromAddress string `json:"from_address"`
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	Username    string `json:"username"`
	Password    string `json:"-"`
}

// SendTarget is a candidate addressed by a campaign send, with the fields
// merge tags draw from.
type SendTarget struct {
	CandidateID    string `json:"candidate_id"`
	WorkspaceID    string `json:"workspace_id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	CurrentTitle   string `json:"current_title"`
	CurrentCompany string `json:"current_company"`
	Location       string `json:"location"`
}

// SendEvent is a delivery-side signal reported for a campaign send.
type SendEvent string

const (
	EventDelivered SendEvent = "delivered"
	EventOpened    SendEvent = "opened"
	EventClicked   SendEvent = "clicked"
	EventReplied   SendEvent = "replied"
	EventBounced   SendEvent = "bounced"
	EventComplaint SendEvent = "complaint"
)

var sendRank = map[SendStatus]int{
	SendPending:   0,
	SendSent:      1,
	SendDelivered: 2,
	SendOpened:    3,
	SendClicked:   4,
	SendReplied:   5,
}

// Apply records ev on the send. Status only moves forward along
// sent → delivered → opened → clicked → replied; a bounce is terminal.
// It reports whether anything changed.
func (s *CampaignSend) Apply(ev SendEvent, at time.Time) bool {
	changed := false
	stamp := func(p **time.Time) {
		if *p == nil {
			t := at
			*p = &t
			changed = true
		}
	}
	advance := func(to SendStatus) {
		cur, ok := sendRank[s.Status]
		if ok && cur < sendRank[to] {
			s.Status = to
			changed = true
		}
	}

	switch ev {
	case EventDelivered:
		advance(SendDelivered)
	case EventOpened:
		stamp(&s.OpenedAt)
		advance(SendOpened)
	case EventClicked:
		stamp(&s.OpenedAt)
		stamp(&s.ClickedAt)
		advance(SendClicked)
	case EventReplied:
		stamp(&s.RepliedAt)
		advance(SendReplied)
	case EventBounced:
		stamp(&s.BouncedAt)
		if s.Status != SendBounced {
			s.Status = SendBounced
			changed = true
		}
	}
	if changed {
		s.UpdatedAt = at
	}
	return changed
}
