package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/resilience"
	"github.com/sells-group/recruit-cli/internal/store"
	"github.com/sells-group/recruit-cli/internal/usage"
	"github.com/sells-group/recruit-cli/pkg/anthropic"
	"github.com/sells-group/recruit-cli/pkg/hunter"
	"github.com/sells-group/recruit-cli/pkg/proxycurl"
)

// Executor fills one task type for a candidate by calling a provider.
type Executor interface {
	Type() model.TaskType
	Provider() string
	Execute(ctx context.Context, c *model.Candidate) (Result, error)
}

// Registry maps each task type to its executor. Types without an entry are
// auto-failed by the dispatcher.
type Registry map[model.TaskType]Executor

// NewRegistry indexes executors by their task type.
func NewRegistry(execs ...Executor) Registry {
	r := make(Registry, len(execs))
	for _, e := range execs {
		r[e.Type()] = e
	}
	return r
}

// ErrMissingInput marks a permanent failure raised before any provider call.
var ErrMissingInput = eris.New("missing required input")

func missingInput(provider, field string) error {
	return resilience.NewPermanent(provider, eris.Wrapf(ErrMissingInput, "%s is empty", field))
}

// --- Hunter ---

// EmailFinder runs find-email through Hunter.
type EmailFinder struct {
	Client hunter.Client
}

func (EmailFinder) Type() model.TaskType { return model.TaskFindEmail }
func (EmailFinder) Provider() string     { return model.ProviderHunter }

func (e EmailFinder) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	switch {
	case c.FirstName == "":
		return nil, missingInput(e.Provider(), "first name")
	case c.LastName == "":
		return nil, missingInput(e.Provider(), "last name")
	case c.CurrentCompany == "":
		return nil, missingInput(e.Provider(), "current company")
	}
	res, err := e.Client.FindEmail(ctx, c.FirstName, c.LastName, c.CurrentCompany)
	if err != nil {
		return nil, err
	}
	return EmailFound{Email: model.EmailKey(res.Email), Score: res.Score}, nil
}

// EmailVerifier runs verify-email through Hunter.
type EmailVerifier struct {
	Client hunter.Client
}

func (EmailVerifier) Type() model.TaskType { return model.TaskVerifyEmail }
func (EmailVerifier) Provider() string     { return model.ProviderHunter }

func (e EmailVerifier) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	if c.Email == "" {
		return nil, missingInput(e.Provider(), "email")
	}
	v, err := e.Client.VerifyEmail(ctx, c.Email)
	if err != nil {
		return nil, err
	}
	return EmailVerification{Deliverable: v.Deliverable(), Status: v.Status}, nil
}

// --- Proxycurl ---

// PhoneFinder runs find-phone through Proxycurl's personal contact lookup.
type PhoneFinder struct {
	Client proxycurl.Client
}

func (PhoneFinder) Type() model.TaskType { return model.TaskFindPhone }
func (PhoneFinder) Provider() string     { return model.ProviderProxycurl }

func (e PhoneFinder) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	if c.LinkedInURL == "" {
		return nil, missingInput(e.Provider(), "linkedin url")
	}
	nums, err := e.Client.PersonalNumbers(ctx, c.LinkedInURL)
	if err != nil {
		return nil, err
	}
	return PhoneFound{Phone: nums[0]}, nil
}

// ProfileScraper runs linkedin-profile through Proxycurl.
type ProfileScraper struct {
	Client proxycurl.Client
	Now    func() time.Time
}

func (ProfileScraper) Type() model.TaskType { return model.TaskLinkedInProfile }
func (ProfileScraper) Provider() string     { return model.ProviderProxycurl }

func (e ProfileScraper) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	if c.LinkedInURL == "" {
		return nil, missingInput(e.Provider(), "linkedin url")
	}
	p, err := e.Client.Profile(ctx, c.LinkedInURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now()
	}
	res := ProfileScraped{
		ImageURL:  p.ProfilePicURL,
		Headline:  p.Headline,
		About:     p.Summary,
		Skills:    p.Skills,
		ScrapedAt: now,
	}
	for _, x := range p.Experiences {
		res.Experience = append(res.Experience, model.Experience{
			Title:       x.Title,
			Company:     x.Company,
			StartDate:   x.StartsAt.String(),
			EndDate:     x.EndsAt.String(),
			Description: x.Description,
		})
	}
	for _, x := range p.Education {
		res.Education = append(res.Education, model.Education{
			School:    x.School,
			Degree:    x.DegreeName,
			Field:     x.FieldOfStudy,
			StartDate: x.StartsAt.String(),
			EndDate:   x.EndsAt.String(),
		})
	}
	for _, x := range p.Certifications {
		if x.Name != "" {
			res.Certifications = append(res.Certifications, x.Name)
		}
	}
	return res, nil
}

// CompanyEnricher runs company-info through Proxycurl.
type CompanyEnricher struct {
	Client proxycurl.Client
}

func (CompanyEnricher) Type() model.TaskType { return model.TaskCompanyInfo }
func (CompanyEnricher) Provider() string     { return model.ProviderProxycurl }

func (e CompanyEnricher) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	if c.CurrentCompany == "" {
		return nil, missingInput(e.Provider(), "current company")
	}
	co, err := e.Client.Company(ctx, c.CurrentCompany)
	if err != nil {
		return nil, err
	}

	var info model.OrderedMap
	for _, kv := range [][2]string{
		{"name", co.Name},
		{"website", co.Website},
		{"industry", co.Industry},
		{"size", co.SizeRange()},
		{"headquarters", co.Headquarters()},
		{"linkedin_url", co.LinkedInURL},
	} {
		if kv[1] != "" {
			info.Set(kv[0], kv[1])
		}
	}
	if co.FoundedYear > 0 {
		info.Set("founded", strconv.Itoa(co.FoundedYear))
	}
	if info.Len() == 0 {
		return nil, resilience.NoData(e.Provider())
	}
	return CompanyEnriched{Info: info}, nil
}

// --- Claude ---

// JobSource loads the job a candidate is scored against.
type JobSource interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// Scorer runs ai-score through Claude.
type Scorer struct {
	Client    anthropic.Client
	Jobs      JobSource
	Model     string
	MaxTokens int64
	// DefaultCriteria scores candidates that have no job.
	DefaultCriteria string
	Calc            *usage.Calculator
}

func (Scorer) Type() model.TaskType { return model.TaskAIScore }
func (Scorer) Provider() string     { return model.ProviderAnthropic }

const scorerSystemPrompt = `You are a technical recruiter. Score how well the candidate fits the job criteria on a 0-100 scale.
Respond with only a JSON object: {"score": <integer 0-100>, "reasons": ["<short reason>", ...]}.
Give at most five reasons. Base the score only on the data provided; missing data lowers confidence, not the score itself.`

func (e Scorer) Execute(ctx context.Context, c *model.Candidate) (Result, error) {
	criteria, err := e.criteria(ctx, c)
	if err != nil {
		return nil, err
	}

	resp, err := e.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.Model,
		MaxTokens: max(e.MaxTokens, 256),
		System:    anthropic.CachedSystem(scorerSystemPrompt),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: "Job criteria:\n" + criteria + "\n\nCandidate:\n" + Summary(c),
		}},
	})
	if err != nil {
		return nil, err
	}

	res, err := parseScore(resp.Text())
	if err != nil {
		return nil, resilience.NewTransient(e.Provider(), err, 0)
	}
	if e.Calc != nil {
		u := resp.Usage
		res.CostUSD = e.Calc.Claude(e.Model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
	}
	return res, nil
}

func (e Scorer) criteria(ctx context.Context, c *model.Candidate) (string, error) {
	if c.JobID == "" {
		if e.DefaultCriteria == "" {
			return "", missingInput(e.Provider(), "job criteria")
		}
		return e.DefaultCriteria, nil
	}
	job, err := e.Jobs.GetJob(ctx, c.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return "", missingInput(e.Provider(), "job "+c.JobID)
	}
	if err != nil {
		return "", eris.Wrap(err, "enrich: load job")
	}
	if strings.TrimSpace(job.Criteria) == "" {
		return job.Title, nil
	}
	return job.Title + "\n" + job.Criteria, nil
}

// Summary renders the candidate fields the scorer sees.
func Summary(c *model.Candidate) string {
	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Name", c.FullName())
	line("Title", c.CurrentTitle)
	line("Company", c.CurrentCompany)
	line("Location", c.Location)
	line("Headline", c.Headline)
	line("About", c.About)
	if c.ExperienceYears > 0 {
		line("Years of experience", strconv.Itoa(c.ExperienceYears))
	}
	if len(c.Skills) > 0 {
		line("Skills", strings.Join(c.Skills, ", "))
	}
	for _, x := range c.Experience {
		span := strings.Trim(x.StartDate+" - "+x.EndDate, " -")
		line("Experience", strings.TrimSpace(x.Title+" at "+x.Company+" "+span))
	}
	for _, x := range c.Education {
		line("Education", strings.TrimLeft(strings.TrimSpace(x.Degree+" "+x.Field)+", "+x.School, ", "))
	}
	if len(c.Certifications) > 0 {
		line("Certifications", strings.Join(c.Certifications, ", "))
	}
	return b.String()
}

func parseScore(text string) (AIScored, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return AIScored{}, eris.Errorf("enrich: no JSON object in score response %q", truncate(text, 200))
	}

	var out struct {
		Score   *int     `json:"score"`
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return AIScored{}, eris.Wrap(err, "enrich: decode score response")
	}
	if out.Score == nil {
		return AIScored{}, eris.New("enrich: score response has no score")
	}
	return AIScored{Score: *out.Score, Reasons: out.Reasons}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
