package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/recruit-cli/internal/model"
)

func TestAggregateStatus(t *testing.T) {
	task := func(typ model.TaskType, status model.TaskStatus, age time.Duration) model.EnrichmentTask {
		return model.EnrichmentTask{Type: typ, Status: status, CreatedAt: t0.Add(-age)}
	}

	tests := []struct {
		name  string
		tasks []model.EnrichmentTask
		want  model.EnrichmentStatus
	}{
		{"no tasks", nil, model.EnrichmentComplete},
		{"all completed", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskCompleted, 0),
			task(model.TaskAIScore, model.TaskCompleted, 0),
		}, model.EnrichmentComplete},
		{"one pending", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskCompleted, 0),
			task(model.TaskAIScore, model.TaskPending, 0),
		}, model.EnrichmentPending},
		{"in progress", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskFailed, 0),
			task(model.TaskAIScore, model.TaskInProgress, 0),
		}, model.EnrichmentPending},
		{"mixed", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskFailed, 0),
			task(model.TaskAIScore, model.TaskCompleted, 0),
		}, model.EnrichmentPartial},
		{"all failed", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskFailed, 0),
			task(model.TaskAIScore, model.TaskFailed, 0),
		}, model.EnrichmentFailed},
		{"newer success supersedes failure", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskFailed, time.Hour),
			task(model.TaskFindEmail, model.TaskCompleted, 0),
		}, model.EnrichmentComplete},
		{"requeued type counts as pending", []model.EnrichmentTask{
			task(model.TaskFindEmail, model.TaskFailed, 0),
			task(model.TaskFindEmail, model.TaskPending, 0),
		}, model.EnrichmentPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.tasks))
		})
	}
}
