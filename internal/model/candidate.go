// Package model holds the domain types shared by the dedup, enrichment and outreach engine.
package model

import "time"

// EnrichmentStatus is the aggregate health of a candidate's enrichment tasks.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentComplete EnrichmentStatus = "complete"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

// Experience is one position scraped from a candidate profile.
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Education is one school entry scraped from a candidate profile.
type Education struct {
	School    string `json:"school"`
	Degree    string `json:"degree,omitempty"`
	Field     string `json:"field,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Candidate is the de-duplicated person record owned by a workspace.
type Candidate struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	JobID       string `json:"job_id,omitempty"`

	// Identity
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	LinkedInURL    string `json:"linkedin_url,omitempty"`
	CurrentTitle   string `json:"current_title,omitempty"`
	CurrentCompany string `json:"current_company,omitempty"`
	Location       string `json:"location,omitempty"`

	// Profile
	Headline        string       `json:"headline,omitempty"`
	About           string       `json:"about,omitempty"`
	ProfileImageURL string       `json:"profile_image_url,omitempty"`
	Experience      []Experience `json:"experience,omitempty"`
	Education       []Education  `json:"education,omitempty"`
	Certifications  []string     `json:"certifications,omitempty"`
	CompanyInfo     OrderedMap   `json:"company_info"`
	SocialProfiles  OrderedMap   `json:"social_profiles"`

	// Derived
	Skills           []string `json:"skills,omitempty"`
	ExperienceYears  int      `json:"experience_years,omitempty"`
	AIScore          *int     `json:"ai_score,omitempty"`
	AIScoreReasons   []string `json:"ai_score_reasons,omitempty"`
	DataCompleteness int      `json:"data_completeness"`

	EmailVerified    *bool            `json:"email_verified,omitempty"`
	PhoneVerified    *bool            `json:"phone_verified,omitempty"`
	ProfileScrapedAt *time.Time       `json:"profile_scraped_at,omitempty"`
	EnrichmentSource string           `json:"enrichment_source,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (c *Candidate) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Score returns the AI score, or 0 when the candidate has not been scored.
func (c *Candidate) Score() int {
	if c.AIScore == nil {
		return 0
	}
	return *c.AIScore
}

// completenessFields is the checklist behind DataCompleteness.
var completenessFields = []func(c *Candidate) bool{
	func(c *Candidate) bool { return c.Email != "" },
	func(c *Candidate) bool { return c.Phone != "" },
	func(c *Candidate) bool { return c.LinkedInURL != "" },
	func(c *Candidate) bool { return c.CurrentTitle != "" },
	func(c *Candidate) bool { return c.CurrentCompany != "" },
	func(c *Candidate) bool { return c.Location != "" },
	func(c *Candidate) bool { return c.Headline != "" },
	func(c *Candidate) bool { return c.About != "" },
	func(c *Candidate) bool { return len(c.Skills) > 0 },
	func(c *Candidate) bool { return len(c.Experience) > 0 },
}

// Completeness returns the percentage (0-100, rounded) of checklist fields
// that are filled.
func (c *Candidate) Completeness() int {
	filled := 0
	for _, f := range completenessFields {
		if f(c) {
			filled++
		}
	}
	return (filled*100 + len(completenessFields)/2) / len(completenessFields)
}

// CandidateInput is one incoming record from a scraper, data provider or upload.
type CandidateInput struct {
	WorkspaceID     string
	JobID           string
	Source          string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	LinkedInURL     string
	CurrentTitle    string
	CurrentCompany  string
	Location        string
	Headline        string
	Skills          []string
	ExperienceYears int
	AIScore         *int
	CompanyInfo     OrderedMap
	SocialProfiles  OrderedMap
}

// Candidate converts the input into an unsaved candidate record.
func (in CandidateInput) Candidate() Candidate {
	return Candidate{
		WorkspaceID:      in.WorkspaceID,
		JobID:            in.JobID,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Email:            in.Email,
		Phone:            in.Phone,
		LinkedInURL:      in.LinkedInURL,
		CurrentTitle:     in.CurrentTitle,
		CurrentCompany:   in.CurrentCompany,
		Location:         in.Location,
		Headline:         in.Headline,
		Skills:           append([]string(nil), in.Skills...),
		ExperienceYears:  in.ExperienceYears,
		AIScore:          in.AIScore,
		CompanyInfo:      in.CompanyInfo.Clone(),
		SocialProfiles:   in.SocialProfiles.Clone(),
		EnrichmentSource: in.Source,
		EnrichmentStatus: EnrichmentPending,
	}
}

// Job is an open role candidates are sourced and scored against.
type Job struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Criteria    string `json:"criteria"`
}
