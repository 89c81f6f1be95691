package enrich

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCandidate(t *testing.T, st *store.SQLiteStore, c model.Candidate) *model.Candidate {
	t.Helper()
	if c.WorkspaceID == "" {
		c.WorkspaceID = "ws1"
	}
	require.NoError(t, st.InsertCandidate(context.Background(), &c))
	return &c
}

func seedTasks(t *testing.T, st *store.SQLiteStore, c *model.Candidate, types ...model.TaskType) {
	t.Helper()
	tasks := make([]model.EnrichmentTask, 0, len(types))
	for _, tt := range types {
		tasks = append(tasks, model.NewTask(c, tt, t0))
	}
	_, err := st.InsertTasks(context.Background(), tasks)
	require.NoError(t, err)
}

func taskOf(t *testing.T, st *store.SQLiteStore, candidateID string, typ model.TaskType) model.EnrichmentTask {
	t.Helper()
	tasks, err := st.ListTasks(context.Background(), candidateID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.Type == typ {
			return task
		}
	}
	t.Fatalf("no %s task for %s", typ, candidateID)
	return model.EnrichmentTask{}
}

// fakeExecutor runs fn and counts invocations.
type fakeExecutor struct {
	typ      model.TaskType
	provider string
	fn       func(c *model.Candidate) (Result, error)
	calls    int
}

func (f *fakeExecutor) Type() model.TaskType { return f.typ }
func (f *fakeExecutor) Provider() string     { return f.provider }

func (f *fakeExecutor) Execute(_ context.Context, c *model.Candidate) (Result, error) {
	f.calls++
	return f.fn(c)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }
