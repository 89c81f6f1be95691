package enrich

import (
	"time"

	"github.com/sells-group/recruit-cli/internal/merge"
	"github.com/sells-group/recruit-cli/internal/model"
)

// DefaultSkillsCap bounds the skills set after a profile scrape.
const DefaultSkillsCap = 50

// Result is the typed payload of a successful task. Each task type has
// exactly one result type, and each result knows which candidate fields it
// owns.
type Result interface {
	TaskType() model.TaskType
	apply(c *model.Candidate, skillsCap int)
}

// EmailFound is the result of find-email.
type EmailFound struct {
	Email string
	Score int
}

func (EmailFound) TaskType() model.TaskType { return model.TaskFindEmail }

func (r EmailFound) apply(c *model.Candidate, _ int) {
	c.Email = r.Email
}

// EmailVerification is the result of verify-email.
type EmailVerification struct {
	Deliverable bool
	Status      string
}

func (EmailVerification) TaskType() model.TaskType { return model.TaskVerifyEmail }

func (r EmailVerification) apply(c *model.Candidate, _ int) {
	v := r.Deliverable
	c.EmailVerified = &v
}

// PhoneFound is the result of find-phone.
type PhoneFound struct {
	Phone string
}

func (PhoneFound) TaskType() model.TaskType { return model.TaskFindPhone }

func (r PhoneFound) apply(c *model.Candidate, _ int) {
	c.Phone = r.Phone
}

// PhoneVerification is the result of verify-phone.
type PhoneVerification struct {
	Valid bool
}

func (PhoneVerification) TaskType() model.TaskType { return model.TaskVerifyPhone }

func (r PhoneVerification) apply(c *model.Candidate, _ int) {
	v := r.Valid
	c.PhoneVerified = &v
}

// ProfileScraped is the result of linkedin-profile.
type ProfileScraped struct {
	ImageURL       string
	Headline       string
	About          string
	Experience     []model.Experience
	Education      []model.Education
	Certifications []string
	Skills         []string
	ScrapedAt      time.Time
}

func (ProfileScraped) TaskType() model.TaskType { return model.TaskLinkedInProfile }

// apply replaces the profile fields with the scrape and unions the scraped
// skills into the existing ones.
func (r ProfileScraped) apply(c *model.Candidate, skillsCap int) {
	if r.ImageURL != "" {
		c.ProfileImageURL = r.ImageURL
	}
	if r.Headline != "" {
		c.Headline = r.Headline
	}
	if r.About != "" {
		c.About = r.About
	}
	if len(r.Experience) > 0 {
		c.Experience = r.Experience
	}
	if len(r.Education) > 0 {
		c.Education = r.Education
	}
	if len(r.Certifications) > 0 {
		c.Certifications = r.Certifications
	}
	c.Skills = merge.UnionStrings(c.Skills, r.Skills, skillsCap)
	at := r.ScrapedAt
	c.ProfileScrapedAt = &at
}

// CompanyEnriched is the result of company-info.
type CompanyEnriched struct {
	Info model.OrderedMap
}

func (CompanyEnriched) TaskType() model.TaskType { return model.TaskCompanyInfo }

func (r CompanyEnriched) apply(c *model.Candidate, _ int) {
	c.CompanyInfo = c.CompanyInfo.Merge(r.Info)
}

// AIScored is the result of ai-score. CostUSD is the token cost of the call.
type AIScored struct {
	Score   int
	Reasons []string
	CostUSD float64
}

func (AIScored) TaskType() model.TaskType { return model.TaskAIScore }

func (r AIScored) apply(c *model.Candidate, _ int) {
	s := min(max(r.Score, 0), 100)
	c.AIScore = &s
	c.AIScoreReasons = r.Reasons
}

// resultCost is the provider cost a result carries beyond the flat per-call price.
func resultCost(r Result) float64 {
	if s, ok := r.(AIScored); ok {
		return s.CostUSD
	}
	return 0
}
