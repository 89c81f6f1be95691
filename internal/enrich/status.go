package enrich

import (
	"github.com/sells-group/recruit-cli/internal/model"
)

// AggregateStatus derives a candidate's enrichment status from its tasks.
// Only the newest task of each type counts, so a type that failed once and
// later succeeded on re-queue is no longer a failure.
//
//	any pending or in_progress      -> pending
//	all completed                   -> complete
//	some completed, some failed     -> partial
//	all failed                      -> failed
func AggregateStatus(tasks []model.EnrichmentTask) model.EnrichmentStatus {
	latest := make(map[model.TaskType]model.EnrichmentTask, len(tasks))
	for _, t := range tasks {
		cur, ok := latest[t.Type]
		if !ok || t.CreatedAt.After(cur.CreatedAt) || (t.CreatedAt.Equal(cur.CreatedAt) && active(t)) {
			latest[t.Type] = t
		}
	}
	if len(latest) == 0 {
		return model.EnrichmentComplete
	}

	var completed, failed int
	for _, t := range latest {
		if active(t) {
			return model.EnrichmentPending
		}
		switch t.Status {
		case model.TaskCompleted:
			completed++
		case model.TaskFailed:
			failed++
		}
	}

	switch {
	case failed == 0:
		return model.EnrichmentComplete
	case completed == 0:
		return model.EnrichmentFailed
	default:
		return model.EnrichmentPartial
	}
}

func active(t model.EnrichmentTask) bool {
	return t.Status == model.TaskPending || t.Status == model.TaskInProgress
}
