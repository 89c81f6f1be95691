// Package dedup inserts or merges incoming candidate records so that each
// person exists at most once per workspace.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/match"
	"github.com/sells-group/recruit-cli/internal/merge"
	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

// Store is the persistence the upserter needs.
type Store interface {
	match.Finder
	InsertCandidate(ctx context.Context, c *model.Candidate) error
	UpdateCandidate(ctx context.Context, c *model.Candidate) error
}

// EnrichmentQueuer plans enrichment work for a freshly written candidate.
type EnrichmentQueuer interface {
	QueueCandidate(ctx context.Context, c *model.Candidate) (int, error)
}

// Upserter runs the match, merge and write sequence for incoming records.
type Upserter struct {
	store   Store
	matcher *match.Matcher
	queuer  EnrichmentQueuer
	now     func() time.Time
}

// Option configures an Upserter.
type Option func(*Upserter)

// WithQueuer queues enrichment after every insert or update.
func WithQueuer(q EnrichmentQueuer) Option {
	return func(u *Upserter) { u.queuer = q }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Upserter) { u.now = now }
}

// New creates an Upserter over st.
func New(st Store, opts ...Option) *Upserter {
	u := &Upserter{
		store:   st,
		matcher: match.New(st),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Upsert writes in as a new candidate or merges it into the record it
// matches. A concurrent insert of the same person surfaces as a unique
// violation; the record is then re-matched and merged instead.
func (u *Upserter) Upsert(ctx context.Context, in model.CandidateInput, strategy model.MergeStrategy) (model.UpsertResult, error) {
	if in.WorkspaceID == "" {
		return model.UpsertResult{}, eris.New("dedup: workspace id is required")
	}
	if !hasIdentity(in) {
		return model.UpsertResult{}, eris.New("dedup: record has no email, linkedin url or name")
	}
	if strategy == "" {
		strategy = model.MergeBest
	}

	incoming := in.Candidate()
	m, err := u.matcher.Find(ctx, &incoming)
	if err != nil {
		return model.UpsertResult{}, eris.Wrap(err, "dedup: match")
	}

	if m == nil {
		res, err := u.insert(ctx, &incoming)
		if !errors.Is(err, store.ErrDuplicate) {
			return res, err
		}

		m, err = u.matcher.Find(ctx, &incoming)
		if err != nil {
			return model.UpsertResult{}, eris.Wrap(err, "dedup: rematch after duplicate")
		}
		if m == nil {
			return model.UpsertResult{}, eris.Wrap(store.ErrDuplicate, "dedup: duplicate with no match")
		}
		zap.L().Debug("dedup: concurrent insert, merging",
			zap.String("workspace_id", in.WorkspaceID),
			zap.String("candidate_id", m.Candidate.ID),
		)
	}

	return u.update(ctx, m, &incoming, strategy)
}

func hasIdentity(in model.CandidateInput) bool {
	return strings.TrimSpace(in.Email) != "" ||
		strings.TrimSpace(in.LinkedInURL) != "" ||
		strings.TrimSpace(in.FirstName+in.LastName) != ""
}

func (u *Upserter) insert(ctx context.Context, c *model.Candidate) (model.UpsertResult, error) {
	now := u.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DataCompleteness = max(c.DataCompleteness, c.Completeness())

	if err := u.store.InsertCandidate(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.UpsertResult{}, err
		}
		return model.UpsertResult{}, eris.Wrap(err, "dedup: insert")
	}
	u.queue(ctx, c)

	return model.UpsertResult{
		Action:      model.ActionInsert,
		CandidateID: c.ID,
		Reason:      "no existing match",
	}, nil
}

func (u *Upserter) update(ctx context.Context, m *match.Result, incoming *model.Candidate, strategy model.MergeStrategy) (model.UpsertResult, error) {
	existing := m.Candidate
	if strategy == model.KeepExisting {
		return model.UpsertResult{
			Action:      model.ActionSkip,
			CandidateID: existing.ID,
			Reason:      fmt.Sprintf("matched by %s; keeping existing record", m.Tier),
		}, nil
	}

	merged := merge.Candidates(existing, incoming, strategy)
	merged.DataCompleteness = max(merged.DataCompleteness, merged.Completeness())
	merged.UpdatedAt = u.now()

	if err := u.store.UpdateCandidate(ctx, &merged); err != nil {
		return model.UpsertResult{}, eris.Wrapf(err, "dedup: update candidate %s", existing.ID)
	}
	u.queue(ctx, &merged)

	return model.UpsertResult{
		Action:      model.ActionUpdate,
		CandidateID: existing.ID,
		Reason:      fmt.Sprintf("matched by %s; merged with %s", m.Tier, strategy),
	}, nil
}

// queue plans enrichment for c. A planning failure does not undo the write.
func (u *Upserter) queue(ctx context.Context, c *model.Candidate) {
	if u.queuer == nil {
		return
	}
	if _, err := u.queuer.QueueCandidate(ctx, c); err != nil {
		zap.L().Warn("dedup: queue enrichment failed",
			zap.String("candidate_id", c.ID),
			zap.Error(err),
		)
	}
}

// ImportSummary counts the outcomes of a batch import.
type ImportSummary struct {
	Total    int                  `json:"total"`
	Inserted int                  `json:"inserted"`
	Updated  int                  `json:"updated"`
	Skipped  int                  `json:"skipped"`
	Failed   int                  `json:"failed"`
	Results  []model.UpsertResult `json:"results"`
	Errors   []string             `json:"errors,omitempty"`
}

// maxSummaryErrors caps the per-row messages kept in an ImportSummary.
const maxSummaryErrors = 50

// ImportBatch upserts every input into workspaceID in order. A failing row
// is counted and recorded; it never aborts the rest of the batch. Context
// cancellation does.
func (u *Upserter) ImportBatch(ctx context.Context, workspaceID string, inputs []model.CandidateInput, strategy model.MergeStrategy) (ImportSummary, error) {
	sum := ImportSummary{Total: len(inputs), Results: make([]model.UpsertResult, 0, len(inputs))}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "dedup: import cancelled")
		}

		if workspaceID != "" {
			in.WorkspaceID = workspaceID
		}
		res, err := u.Upsert(ctx, in, strategy)
		if err != nil {
			res.Reason = err.Error()
		}
		sum.Results = append(sum.Results, res)
		if err != nil {
			sum.Failed++
			if len(sum.Errors) < maxSummaryErrors {
				sum.Errors = append(sum.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			}
			zap.L().Warn("dedup: import row failed", zap.Int("row", i+1), zap.Error(err))
			continue
		}

		switch res.Action {
		case model.ActionInsert:
			sum.Inserted++
		case model.ActionUpdate:
			sum.Updated++
		case model.ActionSkip:
			sum.Skipped++
		}
	}

	zap.L().Info("dedup: import complete",
		zap.String("workspace_id", workspaceID),
		zap.Int("total", sum.Total),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
