package model

import "time"

// TaskType identifies one category of missing candidate data.
type TaskType string

const (
	TaskFindEmail       TaskType = "find-email"
	TaskVerifyEmail     TaskType = "verify-email"
	TaskFindPhone       TaskType = "find-phone"
	TaskVerifyPhone     TaskType = "verify-phone"
	TaskLinkedInProfile TaskType = "linkedin-profile"
	TaskCompanyInfo     TaskType = "company-info"
	TaskAIScore         TaskType = "ai-score"
)

// TaskTypes lists every task type in priority order.
var TaskTypes = []TaskType{
	TaskFindEmail,
	TaskVerifyEmail,
	TaskFindPhone,
	TaskVerifyPhone,
	TaskLinkedInProfile,
	TaskCompanyInfo,
	TaskAIScore,
}

// Priority returns the fixed queue priority of the task type. Lower runs
// first: contact discovery precedes verification, and scoring runs last
// because its quality is bounded by how much data exists.
func (t TaskType) Priority() int {
	for i, tt := range TaskTypes {
		if tt == t {
			return i + 1
		}
	}
	return len(TaskTypes) + 1
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t.Priority() <= len(TaskTypes)
}

// TaskStatus is the lifecycle state of an enrichment task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// DefaultMaxAttempts is the attempt budget of a new task or queue item.
const DefaultMaxAttempts = 3

// EnrichmentTask is one queued unit of enrichment work. Failed tasks are
// kept for observability, never deleted.
type EnrichmentTask struct {
	ID            string     `json:"id"`
	CandidateID   string     `json:"candidate_id"`
	WorkspaceID   string     `json:"workspace_id"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	Priority      int        `json:"priority"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     string     `json:"last_error,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewTask builds a pending task of type t for the candidate, due at now.
func NewTask(c *Candidate, t TaskType, now time.Time) EnrichmentTask {
	return EnrichmentTask{
		CandidateID:   c.ID,
		WorkspaceID:   c.WorkspaceID,
		Type:          t,
		Status:        TaskPending,
		Priority:      t.Priority(),
		MaxAttempts:   DefaultMaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// BatchResult summarizes one invocation of a batch dispatcher.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
