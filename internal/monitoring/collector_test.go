package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) TaskCounts(ctx context.Context, ws string, staleBefore time.Time) (store.QueueCounts, error) {
	args := m.Called(ctx, ws, staleBefore)
	return args.Get(0).(store.QueueCounts), args.Error(1)
}

func (m *mockSource) EmailCounts(ctx context.Context, ws string, staleBefore time.Time) (store.QueueCounts, error) {
	args := m.Called(ctx, ws, staleBefore)
	return args.Get(0).(store.QueueCounts), args.Error(1)
}

func (m *mockSource) GetUsage(ctx context.Context, ws, month string) (*model.UsageRecord, error) {
	args := m.Called(ctx, ws, month)
	rec, _ := args.Get(0).(*model.UsageRecord)
	return rec, args.Error(1)
}

func TestCollector_Snapshot(t *testing.T) {
	src := new(mockSource)
	stale := t0.Add(-30 * time.Minute)
	src.On("TaskCounts", mock.Anything, "ws1", stale).Return(store.QueueCounts{
		ByStatus: map[string]int{"pending": 4, "in_progress": 2, "completed": 6, "failed": 2},
		Stuck:    1,
	}, nil)
	src.On("EmailCounts", mock.Anything, "ws1", stale).Return(store.QueueCounts{
		ByStatus: map[string]int{"pending": 3},
	}, nil)
	src.On("GetUsage", mock.Anything, "ws1", "2026-05").Return(&model.UsageRecord{
		WorkspaceID: "ws1", Month: "2026-05", Calls: map[string]int64{"hunter": 12}, CostUSD: 1.18,
	}, nil)

	c := NewCollector(src, 0)
	c.SetClock(func() time.Time { return t0 })

	snap, err := c.Snapshot(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, "ws1", snap.WorkspaceID)
	assert.Equal(t, 1, snap.Tasks.Stuck)
	assert.Equal(t, 4, snap.Tasks.ByStatus["pending"])
	assert.InDelta(t, 0.25, snap.TaskFailRate, 0.0001)
	assert.Zero(t, snap.EmailFailRate)
	assert.Equal(t, int64(12), snap.Usage.Calls["hunter"])
	assert.Equal(t, 30, snap.StuckAfterMins)
	assert.Equal(t, t0, snap.CollectedAt)
	src.AssertExpectations(t)
}

func TestCollector_PropagatesError(t *testing.T) {
	src := new(mockSource)
	src.On("TaskCounts", mock.Anything, "ws1", mock.Anything).Return(store.QueueCounts{}, errors.New("db down"))

	_, err := NewCollector(src, time.Hour).Snapshot(context.Background(), "ws1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: task counts")
	src.AssertNotCalled(t, "EmailCounts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollector_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	c := &model.Candidate{WorkspaceID: "ws1", FirstName: "Jane", LastName: "Doe"}
	require.NoError(t, st.InsertCandidate(ctx, c))
	old := t0.Add(-2 * time.Hour)
	_, err = st.InsertTasks(ctx, []model.EnrichmentTask{
		model.NewTask(c, model.TaskFindEmail, old),
		model.NewTask(c, model.TaskLinkedInProfile, old),
	})
	require.NoError(t, err)
	// Claimed two hours ago and never finished.
	claimed, err := st.ClaimTasks(ctx, "ws1", 1, old)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, st.IncrementUsage(ctx, "ws1", "2026-05", model.ProviderHunter, 3, 0.3))

	col := NewCollector(st, 30*time.Minute)
	col.SetClock(func() time.Time { return t0 })
	snap, err := col.Snapshot(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Tasks.ByStatus["pending"])
	assert.Equal(t, 1, snap.Tasks.ByStatus["in_progress"])
	assert.Equal(t, 1, snap.Tasks.Stuck)
	assert.Zero(t, snap.Emails.Stuck)
	assert.Equal(t, int64(3), snap.Usage.Calls[model.ProviderHunter])
}
