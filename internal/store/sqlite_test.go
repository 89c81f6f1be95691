package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func seedCandidate(t *testing.T, st *SQLiteStore, c model.Candidate) *model.Candidate {
	t.Helper()
	if c.WorkspaceID == "" {
		c.WorkspaceID = "ws1"
	}
	c.CreatedAt, c.UpdatedAt = t0, t0
	require.NoError(t, st.InsertCandidate(context.Background(), &c))
	return &c
}

// --- Candidates ---

func TestSQLite_Candidate_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	score := 72
	verified := true
	scraped := t0.Add(time.Hour)
	in := seedCandidate(t, st, model.Candidate{
		FirstName:        "Jane",
		LastName:         "Doe",
		Email:            "Jane@X.com",
		LinkedInURL:      "https://www.linkedin.com/in/janedoe/",
		CurrentCompany:   "Acme",
		Skills:           []string{"go", "sql"},
		Experience:       []model.Experience{{Title: "Engineer", Company: "Acme"}},
		CompanyInfo:      model.NewOrderedMap("size", "50", "industry", "software"),
		AIScore:          &score,
		EmailVerified:    &verified,
		ProfileScrapedAt: &scraped,
		EnrichmentSource: "csv",
	})

	got, err := st.GetCandidate(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane@X.com", got.Email)
	assert.Equal(t, []string{"go", "sql"}, got.Skills)
	assert.Equal(t, []string{"size", "industry"}, got.CompanyInfo.Keys())
	require.NotNil(t, got.AIScore)
	assert.Equal(t, 72, *got.AIScore)
	require.NotNil(t, got.EmailVerified)
	assert.True(t, *got.EmailVerified)
	assert.Nil(t, got.PhoneVerified)
	require.NotNil(t, got.ProfileScrapedAt)
	assert.True(t, scraped.Equal(*got.ProfileScrapedAt))
	assert.True(t, t0.Equal(got.CreatedAt))
	assert.Equal(t, model.EnrichmentPending, got.EnrichmentStatus)
	assert.Len(t, got.Experience, 1)
}

func TestSQLite_Candidate_FindByKeys(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCandidate(t, st, model.Candidate{
		FirstName: "Jane", LastName: "Doe", CurrentCompany: "Acme",
		Email: "jane@x.com", LinkedInURL: "linkedin.com/in/janedoe",
	})

	got, err := st.FindCandidateByEmailKey(ctx, "ws1", "jane@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)

	got, err = st.FindCandidateByLinkedInKey(ctx, "ws1", model.LinkedInKey("HTTPS://LinkedIn.com/in/JaneDoe?x=1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)

	got, err = st.FindCandidateByNameKey(ctx, "ws1", model.NameKey("JANE", "doe", "ACME"))
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = st.FindCandidateByEmailKey(ctx, "ws2", "jane@x.com")
	require.NoError(t, err)
	assert.Nil(t, got, "lookups never cross workspaces")

	got, err = st.FindCandidateByEmailKey(ctx, "ws1", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Candidate_DuplicateEmail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedCandidate(t, st, model.Candidate{Email: "jane@x.com"})
	dup := model.Candidate{WorkspaceID: "ws1", Email: " JANE@x.com "}
	err := st.InsertCandidate(ctx, &dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	other := model.Candidate{WorkspaceID: "ws2", Email: "jane@x.com"}
	require.NoError(t, st.InsertCandidate(ctx, &other))

	// Empty keys never collide.
	require.NoError(t, st.InsertCandidate(ctx, &model.Candidate{WorkspaceID: "ws1", FirstName: "A"}))
	require.NoError(t, st.InsertCandidate(ctx, &model.Candidate{WorkspaceID: "ws1", FirstName: "B"}))
}

func TestSQLite_Candidate_UpdateNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateCandidate(context.Background(), &model.Candidate{ID: "missing", UpdatedAt: t0})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetCandidate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Tasks ---

func TestSQLite_Tasks_InsertIsIdempotentForOpenTasks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})

	n, err := st.InsertTasks(ctx, []model.EnrichmentTask{
		model.NewTask(c, model.TaskFindEmail, t0),
		model.NewTask(c, model.TaskAIScore, t0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.InsertTasks(ctx, []model.EnrichmentTask{model.NewTask(c, model.TaskFindEmail, t0)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	tasks, err := st.ListTasks(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSQLite_Tasks_ClaimOrdering(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedCandidate(t, st, model.Candidate{FirstName: "A"})
	b := seedCandidate(t, st, model.Candidate{FirstName: "B"})

	late := model.NewTask(a, model.TaskFindEmail, t0.Add(time.Minute))
	early := model.NewTask(b, model.TaskFindEmail, t0)
	score := model.NewTask(a, model.TaskAIScore, t0.Add(-time.Hour))
	future := model.NewTask(b, model.TaskFindPhone, t0.Add(time.Hour))
	_, err := st.InsertTasks(ctx, []model.EnrichmentTask{score, late, early, future})
	require.NoError(t, err)

	claimed, err := st.ClaimTasks(ctx, "ws1", 10, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, b.ID, claimed[0].CandidateID)
	assert.Equal(t, a.ID, claimed[1].CandidateID)
	assert.Equal(t, model.TaskAIScore, claimed[2].Type)
	for _, c := range claimed {
		assert.Equal(t, model.TaskInProgress, c.Status)
		assert.Equal(t, 1, c.Attempts)
	}

	again, err := st.ClaimTasks(ctx, "ws1", 10, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again, "in_progress tasks are never re-claimed")
}

func TestSQLite_Tasks_ClaimLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.Candidate{FirstName: "A"})

	var tasks []model.EnrichmentTask
	for _, tt := range model.TaskTypes {
		tasks = append(tasks, model.NewTask(c, tt, t0))
	}
	_, err := st.InsertTasks(ctx, tasks)
	require.NoError(t, err)

	claimed, err := st.ClaimTasks(ctx, "ws1", 2, t0)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, model.TaskFindEmail, claimed[0].Type)
	assert.Equal(t, model.TaskVerifyEmail, claimed[1].Type)

	pending, err := st.CountPendingTasks(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, 5, pending)
}

func TestSQLite_Tasks_UpdateAndFailPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.Candidate{FirstName: "A"})

	_, err := st.InsertTasks(ctx, []model.EnrichmentTask{
		model.NewTask(c, model.TaskFindEmail, t0),
		model.NewTask(c, model.TaskVerifyPhone, t0),
	})
	require.NoError(t, err)

	ids, err := st.FailPendingTasks(ctx, "ws1", []model.TaskType{model.TaskVerifyPhone}, "no executor", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids)

	claimed, err := st.ClaimTasks(ctx, "ws1", 10, t0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	task := claimed[0]
	done := t0.Add(time.Second)
	task.Status = model.TaskCompleted
	task.CompletedAt = &done
	task.UpdatedAt = done
	task.Provider = model.ProviderHunter
	require.NoError(t, st.UpdateTask(ctx, &task))

	tasks, err := st.ListTasks(ctx, c.ID)
	require.NoError(t, err)
	byType := map[model.TaskType]model.EnrichmentTask{}
	for _, tk := range tasks {
		byType[tk.Type] = tk
	}
	assert.Equal(t, model.TaskCompleted, byType[model.TaskFindEmail].Status)
	require.NotNil(t, byType[model.TaskFindEmail].CompletedAt)
	assert.Equal(t, model.TaskFailed, byType[model.TaskVerifyPhone].Status)
	assert.Equal(t, "no executor", byType[model.TaskVerifyPhone].LastError)
}

func TestSQLite_Tasks_ResetStuck(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.Candidate{FirstName: "A"})
	_, err := st.InsertTasks(ctx, []model.EnrichmentTask{model.NewTask(c, model.TaskFindEmail, t0)})
	require.NoError(t, err)
	_, err = st.ClaimTasks(ctx, "ws1", 10, t0)
	require.NoError(t, err)

	counts, err := st.TaskCounts(ctx, "ws1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ByStatus["in_progress"])
	assert.Equal(t, 1, counts.Stuck)

	n, err := st.ResetStuckTasks(ctx, "ws1", t0.Add(-time.Minute), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "recently claimed tasks are left alone")

	n, err = st.ResetStuckTasks(ctx, "ws1", t0.Add(time.Minute), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := st.CountPendingTasks(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

// --- Email queue and campaigns ---

func seedCampaign(t *testing.T, st *SQLiteStore) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	acct := &model.SenderAccount{WorkspaceID: "ws1", FromAddress: "r@acme.io", SMTPHost: "smtp.acme.io", SMTPPort: 587}
	require.NoError(t, st.CreateSenderAccount(ctx, acct))
	camp := &model.Campaign{
		WorkspaceID:     "ws1",
		Name:            "Q2",
		Status:          model.CampaignActive,
		SenderAccountID: acct.ID,
		FromAddress:     acct.FromAddress,
		Subject:         "Hi {{firstName}}",
		Body:            "<p>Hello</p>",
		Steps: []model.FollowUpStep{
			{Step: 2, DelayDays: 7, Subject: "Last try", Body: "b2"},
			{Step: 1, DelayDays: 3, Subject: "Following up", Body: "b1"},
		},
		CreatedAt: t0,
	}
	require.NoError(t, st.CreateCampaign(ctx, camp))
	return camp
}

func newSend(camp *model.Campaign, c *model.Candidate, step int) (*model.CampaignSend, *model.EmailQueueItem) {
	send := &model.CampaignSend{
		CampaignID: camp.ID, CandidateID: c.ID, WorkspaceID: c.WorkspaceID,
		FollowUpStep: step, Status: model.SendPending, ToAddress: c.Email,
		CreatedAt: t0, UpdatedAt: t0,
	}
	item := &model.EmailQueueItem{
		WorkspaceID: c.WorkspaceID, SenderAccountID: camp.SenderAccountID,
		From: camp.FromAddress, To: c.Email, Subject: "s", HTMLBody: "<p>b</p>",
		Status: model.EmailPending, Priority: step, MaxAttempts: 3,
		NextAttemptAt: t0, CreatedAt: t0, UpdatedAt: t0,
	}
	return send, item
}

func TestSQLite_Campaign_GetOrdersSteps(t *testing.T) {
	st := newTestSQLiteStore(t)
	camp := seedCampaign(t, st)

	got, err := st.GetCampaign(context.Background(), camp.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, 1, got.Steps[0].Step)
	assert.Equal(t, 2, got.Steps[1].Step)

	ids, err := st.ListFollowUpCampaigns(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{camp.ID}, ids)

	require.NoError(t, st.SetCampaignStatus(context.Background(), camp.ID, model.CampaignPaused))
	ids, err = st.ListFollowUpCampaigns(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLite_CreateSend_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	camp := seedCampaign(t, st)
	c := seedCandidate(t, st, model.Candidate{Email: "jane@x.com"})

	send, item := newSend(camp, c, 0)
	created, err := st.CreateSend(ctx, send, item)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, send.ID, item.CampaignSendID)

	send2, item2 := newSend(camp, c, 0)
	created, err = st.CreateSend(ctx, send2, item2)
	require.NoError(t, err)
	assert.False(t, created)

	pending, err := st.CountPendingEmails(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "a rejected send enqueues nothing")
}

func TestSQLite_ClaimEmails_ScheduledFor(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	later := t0.Add(time.Hour)
	now := &model.EmailQueueItem{WorkspaceID: "ws1", SenderAccountID: "a", From: "f@x", To: "t@x",
		Subject: "s", HTMLBody: "b", Status: model.EmailPending, Priority: 1, MaxAttempts: 3,
		NextAttemptAt: t0, CreatedAt: t0, UpdatedAt: t0, Headers: map[string]string{"X-Tag": "1"}}
	gated := *now
	gated.ID = ""
	gated.Priority = 0
	gated.ScheduledFor = &later
	require.NoError(t, st.EnqueueEmail(ctx, now))
	require.NoError(t, st.EnqueueEmail(ctx, &gated))

	claimed, err := st.ClaimEmails(ctx, "ws1", 10, t0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, now.ID, claimed[0].ID)
	assert.Equal(t, "1", claimed[0].Headers["X-Tag"])
	assert.Equal(t, 1, claimed[0].Attempts)

	claimed, err = st.ClaimEmails(ctx, "ws1", 10, later)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, gated.ID, claimed[0].ID)
}

func TestSQLite_FinishEmail_SentPropagates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	camp := seedCampaign(t, st)
	c := seedCandidate(t, st, model.Candidate{Email: "jane@x.com"})
	send, item := newSend(camp, c, 0)
	_, err := st.CreateSend(ctx, send, item)
	require.NoError(t, err)

	sentAt := t0.Add(time.Minute)
	item.Status = model.EmailSent
	item.SentAt = &sentAt
	item.ProviderMessageID = "<msg-1@acme.io>"
	item.UpdatedAt = sentAt
	require.NoError(t, st.FinishEmail(ctx, item))
	// A redelivered success must not double count.
	require.NoError(t, st.FinishEmail(ctx, item))

	gotSend, err := st.GetSend(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SendSent, gotSend.Status)
	require.NotNil(t, gotSend.SentAt)
	assert.Equal(t, "<msg-1@acme.io>", gotSend.ProviderMessageID)

	gotCamp, err := st.GetCampaign(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCamp.TotalSent)

	byMsg, err := st.FindSendByMessageID(ctx, "<msg-1@acme.io>")
	require.NoError(t, err)
	assert.Equal(t, send.ID, byMsg.ID)
}

func TestSQLite_FinishEmail_CancelledPropagates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	camp := seedCampaign(t, st)
	c := seedCandidate(t, st, model.Candidate{Email: "jane@x.com"})
	send, item := newSend(camp, c, 0)
	_, err := st.CreateSend(ctx, send, item)
	require.NoError(t, err)

	item.Status = model.EmailCancelled
	item.UpdatedAt = t0
	require.NoError(t, st.FinishEmail(ctx, item))

	gotSend, err := st.GetSend(ctx, send.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SendCancelled, gotSend.Status)

	gotCamp, err := st.GetCampaign(ctx, camp.ID)
	require.NoError(t, err)
	assert.Zero(t, gotCamp.TotalSent)

	// A cancelled send frees the (campaign, candidate, step) slot.
	send2, item2 := newSend(camp, c, 0)
	created, err := st.CreateSend(ctx, send2, item2)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSQLite_FollowUpTargets(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	camp := seedCampaign(t, st)

	markSent := func(c *model.Candidate, at time.Time) *model.CampaignSend {
		send, item := newSend(camp, c, 0)
		_, err := st.CreateSend(ctx, send, item)
		require.NoError(t, err)
		item.Status = model.EmailSent
		item.SentAt = &at
		item.UpdatedAt = at
		require.NoError(t, st.FinishEmail(ctx, item))
		return send
	}

	eligible := seedCandidate(t, st, model.Candidate{FirstName: "E", Email: "e@x.com"})
	tooRecent := seedCandidate(t, st, model.Candidate{FirstName: "R", Email: "r@x.com"})
	replied := seedCandidate(t, st, model.Candidate{FirstName: "P", Email: "p@x.com"})
	already := seedCandidate(t, st, model.Candidate{FirstName: "A", Email: "a@x.com"})

	markSent(eligible, t0)
	markSent(tooRecent, t0.Add(5*24*time.Hour))
	rs := markSent(replied, t0)
	rs.Status = model.SendSent
	rs.Apply(model.EventReplied, t0.Add(time.Hour))
	require.NoError(t, st.UpdateSendEvents(ctx, rs))
	markSent(already, t0)
	fs, fi := newSend(camp, already, 1)
	_, err := st.CreateSend(ctx, fs, fi)
	require.NoError(t, err)

	targets, err := st.FollowUpTargets(ctx, camp.ID, 1, t0.Add(3*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, eligible.ID, targets[0].CandidateID)
	assert.Equal(t, "e@x.com", targets[0].Email)
	assert.Equal(t, "E", targets[0].FirstName)
}

func TestSQLite_Suppression(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := st.IsSuppressed(ctx, "ws1", "jane@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	e := model.SuppressionEntry{WorkspaceID: "ws1", Email: "Jane@X.com", Reason: model.SuppressUnsubscribed}
	require.NoError(t, st.AddSuppression(ctx, e))
	require.NoError(t, st.AddSuppression(ctx, e))

	ok, err = st.IsSuppressed(ctx, "ws1", " jane@x.COM")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.IsSuppressed(ctx, "ws2", "jane@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Usage ---

func TestSQLite_Usage_Increment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.IncrementUsage(ctx, "ws1", "2026-05", model.ProviderHunter, 1, 0.05))
	require.NoError(t, st.IncrementUsage(ctx, "ws1", "2026-05", model.ProviderHunter, 2, 0.10))
	require.NoError(t, st.IncrementUsage(ctx, "ws1", "2026-05", model.ProviderSMTP, 1, 0))
	require.NoError(t, st.IncrementUsage(ctx, "ws1", "2026-06", model.ProviderHunter, 9, 0))

	n, err := st.ProviderCalls(ctx, "ws1", "2026-05", model.ProviderHunter)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = st.ProviderCalls(ctx, "ws1", "2026-05", model.ProviderProxycurl)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := st.GetUsage(ctx, "ws1", "2026-05")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hunter": 3, "smtp": 1}, rec.Calls)
	assert.InDelta(t, 0.15, rec.CostUSD, 1e-9)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", TruncateError("short"))
	long := make([]rune, 1500)
	for i := range long {
		long[i] = 'é'
	}
	assert.Len(t, []rune(TruncateError(string(long))), 1000)
}
