// Package store persists candidates, queues, campaigns and usage counters.
package store

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

var (
	// ErrNotFound is returned by Get* lookups for a missing row.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when an insert or update collides with a
	// unique identity key held by another row.
	ErrDuplicate = eris.New("store: duplicate")
)

// maxErrorLen bounds last_error on queue rows.
const maxErrorLen = 1000

// TruncateError clips an error message to the stored length.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}
	r := []rune(msg)
	return string(r[:maxErrorLen])
}

// Store is the full persistence surface. Callers always pass the owning
// workspace; rows are never read across workspaces except by id.
type Store interface {
	// Candidates. Find* return (nil, nil) when nothing matches.
	FindCandidateByEmailKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
	FindCandidateByLinkedInKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
	FindCandidateByNameKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
	InsertCandidate(ctx context.Context, c *model.Candidate) error
	UpdateCandidate(ctx context.Context, c *model.Candidate) error
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	SetEnrichmentStatus(ctx context.Context, candidateID string, status model.EnrichmentStatus, now time.Time) error
	CountCandidates(ctx context.Context, workspaceID string) (int, error)

	// Jobs
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// Enrichment tasks
	InsertTasks(ctx context.Context, tasks []model.EnrichmentTask) (int, error)
	ClaimTasks(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EnrichmentTask, error)
	UpdateTask(ctx context.Context, t *model.EnrichmentTask) error
	ListTasks(ctx context.Context, candidateID string) ([]model.EnrichmentTask, error)
	FailPendingTasks(ctx context.Context, workspaceID string, types []model.TaskType, reason string, now time.Time) ([]string, error)
	CountPendingTasks(ctx context.Context, workspaceID string) (int, error)
	ResetStuckTasks(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error)
	TaskCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error)

	// Email queue
	EnqueueEmail(ctx context.Context, item *model.EmailQueueItem) error
	ClaimEmails(ctx context.Context, workspaceID string, limit int, now time.Time) ([]model.EmailQueueItem, error)
	UpdateEmail(ctx context.Context, item *model.EmailQueueItem) error
	FinishEmail(ctx context.Context, item *model.EmailQueueItem) error
	GetEmail(ctx context.Context, id string) (*model.EmailQueueItem, error)
	CountPendingEmails(ctx context.Context, workspaceID string) (int, error)
	ResetStuckEmails(ctx context.Context, workspaceID string, staleBefore, now time.Time) (int, error)
	EmailCounts(ctx context.Context, workspaceID string, staleBefore time.Time) (QueueCounts, error)
	CreateSenderAccount(ctx context.Context, a *model.SenderAccount) error
	GetSenderAccount(ctx context.Context, id string) (*model.SenderAccount, error)

	// Suppression
	IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error)
	AddSuppression(ctx context.Context, e model.SuppressionEntry) error

	// Campaigns
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error
	ListFollowUpCampaigns(ctx context.Context, workspaceID string) ([]string, error)
	FollowUpTargets(ctx context.Context, campaignID string, step int, sentBefore time.Time) ([]model.SendTarget, error)
	CreateSend(ctx context.Context, send *model.CampaignSend, item *model.EmailQueueItem) (bool, error)
	GetSend(ctx context.Context, id string) (*model.CampaignSend, error)
	FindSendByMessageID(ctx context.Context, providerMessageID string) (*model.CampaignSend, error)
	UpdateSendEvents(ctx context.Context, s *model.CampaignSend) error
	ListSends(ctx context.Context, campaignID string) ([]model.CampaignSend, error)

	// Usage
	IncrementUsage(ctx context.Context, workspaceID, month, provider string, calls int64, costUSD float64) error
	ProviderCalls(ctx context.Context, workspaceID, month, provider string) (int64, error)
	GetUsage(ctx context.Context, workspaceID, month string) (*model.UsageRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// QueueCounts is a queue's row count per status plus in_progress rows whose
// last update is older than the stale cutoff.
type QueueCounts struct {
	ByStatus map[string]int `json:"by_status"`
	Stuck    int            `json:"stuck"`
}
