package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Gaps returns the task types a candidate still needs, in priority order.
// Verification only follows discovery: a missing email yields find-email,
// never verify-email.
func Gaps(c *model.Candidate) []model.TaskType {
	var gaps []model.TaskType
	for _, t := range model.TaskTypes {
		if needs(c, t) {
			gaps = append(gaps, t)
		}
	}
	return gaps
}

func needs(c *model.Candidate, t model.TaskType) bool {
	switch t {
	case model.TaskFindEmail:
		return c.Email == ""
	case model.TaskVerifyEmail:
		return c.Email != "" && c.EmailVerified == nil
	case model.TaskFindPhone:
		return c.Phone == ""
	case model.TaskVerifyPhone:
		return c.Phone != "" && c.PhoneVerified == nil
	case model.TaskLinkedInProfile:
		return c.LinkedInURL != "" && c.ProfileScrapedAt == nil
	case model.TaskCompanyInfo:
		return c.CurrentCompany != "" && c.CompanyInfo.Len() == 0
	case model.TaskAIScore:
		return c.AIScore == nil
	default:
		return false
	}
}

// Planner turns candidate gaps into queued tasks.
type Planner struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

// NewPlanner creates a Planner over st.
func NewPlanner(st Store) *Planner {
	return &Planner{
		store:       st,
		maxAttempts: model.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxAttempts sets the attempt budget of newly queued tasks.
func (p *Planner) SetMaxAttempts(n int) {
	if n > 0 {
		p.maxAttempts = n
	}
}

// SetClock overrides the time source.
func (p *Planner) SetClock(now func() time.Time) {
	p.now = now
}

// QueueCandidate inserts one pending task per gap and returns how many were
// new. Gaps that already have an active task are not duplicated. A
// candidate with no gaps is marked complete and gets no tasks.
func (p *Planner) QueueCandidate(ctx context.Context, c *model.Candidate) (int, error) {
	now := p.now()
	gaps := Gaps(c)
	if len(gaps) == 0 {
		if err := p.store.SetEnrichmentStatus(ctx, c.ID, model.EnrichmentComplete, now); err != nil {
			return 0, eris.Wrap(err, "enrich: mark complete")
		}
		c.EnrichmentStatus = model.EnrichmentComplete
		return 0, nil
	}

	tasks := make([]model.EnrichmentTask, 0, len(gaps))
	for _, t := range gaps {
		task := model.NewTask(c, t, now)
		task.MaxAttempts = p.maxAttempts
		tasks = append(tasks, task)
	}
	n, err := p.store.InsertTasks(ctx, tasks)
	if err != nil {
		return 0, eris.Wrap(err, "enrich: insert tasks")
	}

	if c.EnrichmentStatus != model.EnrichmentPending {
		if err := p.store.SetEnrichmentStatus(ctx, c.ID, model.EnrichmentPending, now); err != nil {
			return n, eris.Wrap(err, "enrich: mark pending")
		}
		c.EnrichmentStatus = model.EnrichmentPending
	}

	zap.L().Debug("enrich: queued tasks",
		zap.String("candidate_id", c.ID),
		zap.Int("gaps", len(gaps)),
		zap.Int("queued", n),
	)
	return n, nil
}

// QueueEnrichmentForCandidate loads a candidate and queues its gaps.
func (p *Planner) QueueEnrichmentForCandidate(ctx context.Context, candidateID string) (int, error) {
	c, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return 0, eris.Wrapf(err, "enrich: load candidate %s", candidateID)
	}
	return p.QueueCandidate(ctx, c)
}
