package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/resilience"
	"github.com/sells-group/recruit-cli/internal/usage"
)

func newTestDispatcher(st Store, clk *clock, ledger Ledger, execs ...Executor) *Dispatcher {
	d := NewDispatcher(st, NewRegistry(execs...), ledger, Config{BatchSize: 10})
	d.SetClock(clk.Now)
	return d
}

func TestDispatcher_SuccessAppliesResult(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane", LastName: "Doe", CurrentCompany: "Acme"})
	seedTasks(t, st, c, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(c *model.Candidate) (Result, error) {
		assert.Equal(t, "Jane", c.FirstName)
		return EmailFound{Email: "jane@acme.com"}, nil
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder)

	res, err := d.ProcessBatch(ctx, "ws1", 0)
	require.NoError(t, err)
	assert.Equal(t, model.BatchResult{Processed: 1, Succeeded: 1, Failed: 0, Remaining: 0}, res)

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", got.Email)
	assert.Equal(t, got.Completeness(), got.DataCompleteness)
	assert.Equal(t, 20, got.DataCompleteness)
	assert.Equal(t, model.EnrichmentComplete, got.EnrichmentStatus)

	task := taskOf(t, st, c.ID, model.TaskFindEmail)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, "hunter", task.Provider)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(t0))
}

func TestDispatcher_TransientBackoffGrows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, resilience.NewTransient("hunter", errors.New("connection reset"), 0)
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder)

	var gaps []time.Duration
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := d.ProcessBatch(ctx, "ws1", 10)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)

		task := taskOf(t, st, c.ID, model.TaskFindEmail)
		assert.Equal(t, model.TaskPending, task.Status)
		assert.Equal(t, attempt, task.Attempts)
		assert.Contains(t, task.LastError, "connection reset")

		gap := task.NextAttemptAt.Sub(clk.now)
		assert.Equal(t, time.Duration(1<<attempt)*time.Minute, gap)
		gaps = append(gaps, gap)
		clk.now = task.NextAttemptAt
	}
	assert.Greater(t, gaps[1], gaps[0])

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPending, got.EnrichmentStatus)

	// Third attempt exhausts the budget.
	_, err = d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	task := taskOf(t, st, c.ID, model.TaskFindEmail)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, 3, finder.calls)

	got, err = st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, got.EnrichmentStatus)
}

func TestDispatcher_NotYetDueIsNotClaimed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, resilience.NewTransient("hunter", errors.New("timeout"), 0)
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder)

	_, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)

	clk.now = t0.Add(time.Minute)
	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 1, finder.calls)
}

func TestDispatcher_PermanentFailsImmediately(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane", Email: "jane@x.com"})
	seedTasks(t, st, c, model.TaskVerifyEmail, model.TaskAIScore)

	verifier := &fakeExecutor{typ: model.TaskVerifyEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, resilience.NoData("hunter")
	}}
	scorer := &fakeExecutor{typ: model.TaskAIScore, provider: "anthropic", fn: func(*model.Candidate) (Result, error) {
		return AIScored{Score: 140, Reasons: []string{"strong"}}, nil
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, verifier, scorer)

	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	task := taskOf(t, st, c.ID, model.TaskVerifyEmail)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Contains(t, task.LastError, "no data found")

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPartial, got.EnrichmentStatus)
	require.NotNil(t, got.AIScore)
	assert.Equal(t, 100, *got.AIScore)
	assert.Equal(t, []string{"strong"}, got.AIScoreReasons)
}

func TestDispatcher_RateLimitBreaksSameTypeOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := seedCandidate(t, st, model.Candidate{FirstName: "Ann"})
	b := seedCandidate(t, st, model.Candidate{FirstName: "Bob"})
	e := seedCandidate(t, st, model.Candidate{FirstName: "Eve", Email: "eve@x.com"})
	seedTasks(t, st, a, model.TaskFindEmail)
	seedTasks(t, st, b, model.TaskFindEmail)
	seedTasks(t, st, e, model.TaskVerifyEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, resilience.NewRateLimited("hunter", errors.New("http 429"))
	}}
	verifier := &fakeExecutor{typ: model.TaskVerifyEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return EmailVerification{Deliverable: true}, nil
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder, verifier)

	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, finder.calls)
	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Remaining)

	var cooled, released int
	for _, id := range []string{a.ID, b.ID} {
		task := taskOf(t, st, id, model.TaskFindEmail)
		assert.Equal(t, model.TaskPending, task.Status)
		assert.Zero(t, task.Attempts)
		switch {
		case task.NextAttemptAt.Equal(t0.Add(30 * time.Minute)):
			cooled++
			assert.Contains(t, task.LastError, "429")
		case task.NextAttemptAt.Equal(t0):
			released++
			assert.Empty(t, task.LastError)
		}
	}
	assert.Equal(t, 1, cooled)
	assert.Equal(t, 1, released)

	got, err := st.GetCandidate(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailVerified)
	assert.True(t, *got.EmailVerified)
}

func TestDispatcher_RateLimitIgnoresAttemptBudget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, resilience.NewRateLimited("hunter", errors.New("slow down"))
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder)

	for i := 0; i < 5; i++ {
		_, err := d.ProcessBatch(ctx, "ws1", 10)
		require.NoError(t, err)
		clk.now = clk.now.Add(30 * time.Minute)
	}
	task := taskOf(t, st, c.ID, model.TaskFindEmail)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, 5, finder.calls)
}

func TestDispatcher_AutoFailsUnimplemented(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane", Phone: "555"})
	seedTasks(t, st, c, model.TaskVerifyPhone, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return EmailFound{Email: "jane@x.com"}, nil
	}}
	clk := &clock{now: t0}
	d := newTestDispatcher(st, clk, nil, finder)

	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	task := taskOf(t, st, c.ID, model.TaskVerifyPhone)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Equal(t, "no executor registered for task type verify-phone", task.LastError)

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPartial, got.EnrichmentStatus)
}

func TestDispatcher_FoundEmailOwnedByOtherCandidate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCandidate(t, st, model.Candidate{FirstName: "Owner", Email: "taken@x.com"})
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return EmailFound{Email: "taken@x.com"}, nil
	}}
	d := newTestDispatcher(st, &clock{now: t0}, nil, finder)

	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, model.TaskFailed, taskOf(t, st, c.ID, model.TaskFindEmail).Status)
}

func TestDispatcher_QuotaExhaustedCoolsUntilNextMonth(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	ledger := usage.NewLedger(st, usage.Limits{"hunter": {Monthly: 1}})
	ledger.SetClock(func() time.Time { return t0 })
	require.NoError(t, ledger.Record(ctx, "ws1", "hunter", 0))

	finder := &fakeExecutor{typ: model.TaskFindEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return EmailFound{Email: "jane@x.com"}, nil
	}}
	d := newTestDispatcher(st, &clock{now: t0}, ledger, finder)

	res, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, finder.calls)

	task := taskOf(t, st, c.ID, model.TaskFindEmail)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.True(t, task.NextAttemptAt.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))

	rec, err := st.GetUsage(ctx, "ws1", "2026-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Calls["hunter"])
}

func TestDispatcher_RecordsUsage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane", Email: "jane@x.com"})
	seedTasks(t, st, c, model.TaskVerifyEmail, model.TaskAIScore)

	ledger := usage.NewLedger(st, usage.Limits{"hunter": {CostPerCall: 0.01}})
	ledger.SetClock(func() time.Time { return t0 })

	verifier := &fakeExecutor{typ: model.TaskVerifyEmail, provider: "hunter", fn: func(*model.Candidate) (Result, error) {
		return nil, missingInput("hunter", "email")
	}}
	scorer := &fakeExecutor{typ: model.TaskAIScore, provider: "anthropic", fn: func(*model.Candidate) (Result, error) {
		return AIScored{Score: 50, CostUSD: 0.002}, nil
	}}
	d := newTestDispatcher(st, &clock{now: t0}, ledger, verifier, scorer)

	_, err := d.ProcessBatch(ctx, "ws1", 10)
	require.NoError(t, err)

	rec, err := st.GetUsage(ctx, "ws1", "2026-05")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"anthropic": 1}, rec.Calls)
	assert.InDelta(t, 0.002, rec.CostUSD, 1e-9)
}

func TestDispatcher_ResetStuck(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := seedCandidate(t, st, model.Candidate{FirstName: "Jane"})
	seedTasks(t, st, c, model.TaskFindEmail)

	_, err := st.ClaimTasks(ctx, "ws1", 10, t0)
	require.NoError(t, err)

	clk := &clock{now: t0.Add(10 * time.Minute)}
	d := newTestDispatcher(st, clk, nil)

	n, err := d.ResetStuck(ctx, "ws1", 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.now = t0.Add(time.Hour)
	n, err = d.ResetStuck(ctx, "ws1", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TaskPending, taskOf(t, st, c.ID, model.TaskFindEmail).Status)
}
