// Package match finds the existing candidate an incoming record refers to.
package match

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Tier names the identity key a match was made on.
type Tier string

const (
	TierEmail    Tier = "email"
	TierLinkedIn Tier = "linkedin"
	TierName     Tier = "name_company"
)

// Finder looks candidates up by persisted identity key within a workspace.
// Each method returns (nil, nil) when nothing matches.
type Finder interface {
	FindCandidateByEmailKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
	FindCandidateByLinkedInKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
	FindCandidateByNameKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error)
}

// Result is a matched candidate and the tier that found it.
type Result struct {
	Candidate *model.Candidate
	Tier      Tier
}

// Matcher resolves identity in strict tier order.
type Matcher struct {
	finder Finder
}

// New creates a Matcher.
func New(f Finder) *Matcher {
	return &Matcher{finder: f}
}

// Find returns the first tier hit for c within c.WorkspaceID, or nil.
// Tiers run sequentially and stop at the first hit:
//  1. Normalized email
//  2. Normalized LinkedIn URL
//  3. Case-folded first name + last name + current company, all non-empty
func (m *Matcher) Find(ctx context.Context, c *model.Candidate) (*Result, error) {
	emailKey, linkedinKey, nameKey := c.Keys()

	tiers := []struct {
		tier Tier
		key  string
		find func(context.Context, string, string) (*model.Candidate, error)
	}{
		{TierEmail, emailKey, m.finder.FindCandidateByEmailKey},
		{TierLinkedIn, linkedinKey, m.finder.FindCandidateByLinkedInKey},
		{TierName, nameKey, m.finder.FindCandidateByNameKey},
	}

	for _, t := range tiers {
		if t.key == "" {
			continue
		}
		found, err := t.find(ctx, c.WorkspaceID, t.key)
		if err != nil {
			return nil, eris.Wrapf(err, "match: by %s", t.tier)
		}
		if found != nil {
			zap.L().Debug("match: hit",
				zap.String("workspace_id", c.WorkspaceID),
				zap.String("tier", string(t.tier)),
				zap.String("candidate_id", found.ID),
			)
			return &Result{Candidate: found, Tier: t.tier}, nil
		}
	}
	return nil, nil
}
