// Package merge combines an incoming candidate record with a matched one.
package merge

import (
	"strings"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Candidates merges incoming into existing under strategy and returns the
// result. Neither input is modified. Identity (ID, workspace, creation
// time) and enrichment status always come from existing.
//
// keep_existing returns a copy of existing; callers report it as a skip.
func Candidates(existing, incoming *model.Candidate, strategy model.MergeStrategy) model.Candidate {
	out := clone(existing)
	if strategy == model.KeepExisting {
		return out
	}

	pick := firstNonEmpty
	if strategy == model.PreferNew {
		pick = preferNonEmpty
	}

	out.FirstName = pick(existing.FirstName, incoming.FirstName)
	out.LastName = pick(existing.LastName, incoming.LastName)
	out.Email = pick(existing.Email, incoming.Email)
	out.Phone = pick(existing.Phone, incoming.Phone)
	out.LinkedInURL = pick(existing.LinkedInURL, incoming.LinkedInURL)
	out.CurrentTitle = pick(existing.CurrentTitle, incoming.CurrentTitle)
	out.CurrentCompany = pick(existing.CurrentCompany, incoming.CurrentCompany)
	out.Location = pick(existing.Location, incoming.Location)
	out.Headline = pick(existing.Headline, incoming.Headline)
	out.About = pick(existing.About, incoming.About)
	out.ProfileImageURL = pick(existing.ProfileImageURL, incoming.ProfileImageURL)

	if strategy == model.PreferNew {
		if incoming.ExperienceYears > 0 {
			out.ExperienceYears = incoming.ExperienceYears
		}
		if len(incoming.Experience) > 0 {
			out.Experience = append([]model.Experience(nil), incoming.Experience...)
		}
		if len(incoming.Education) > 0 {
			out.Education = append([]model.Education(nil), incoming.Education...)
		}
		out.AIScore = preferPtr(existing.AIScore, incoming.AIScore)
		if incoming.AIScore != nil && len(incoming.AIScoreReasons) > 0 {
			out.AIScoreReasons = append([]string(nil), incoming.AIScoreReasons...)
		}
		if incoming.DataCompleteness > 0 {
			out.DataCompleteness = incoming.DataCompleteness
		}
		out.EmailVerified = preferPtr(existing.EmailVerified, incoming.EmailVerified)
		out.PhoneVerified = preferPtr(existing.PhoneVerified, incoming.PhoneVerified)
		out.ProfileScrapedAt = preferPtr(existing.ProfileScrapedAt, incoming.ProfileScrapedAt)
	} else {
		if out.ExperienceYears == 0 {
			out.ExperienceYears = incoming.ExperienceYears
		}
		out.Experience = unionBy(existing.Experience, incoming.Experience, experienceKey)
		out.Education = unionBy(existing.Education, incoming.Education, educationKey)
		if best := maxScore(existing.AIScore, incoming.AIScore); best != existing.AIScore {
			out.AIScore = copyPtr(best)
			out.AIScoreReasons = append([]string(nil), incoming.AIScoreReasons...)
		}
		out.DataCompleteness = max(existing.DataCompleteness, incoming.DataCompleteness)
		out.EmailVerified = firstPtr(existing.EmailVerified, incoming.EmailVerified)
		out.PhoneVerified = firstPtr(existing.PhoneVerified, incoming.PhoneVerified)
		out.ProfileScrapedAt = firstPtr(existing.ProfileScrapedAt, incoming.ProfileScrapedAt)
	}

	// Verification belongs to the address or profile it was made for.
	if model.EmailKey(out.Email) != model.EmailKey(existing.Email) {
		out.EmailVerified = copyPtr(incoming.EmailVerified)
	}
	if phoneDigits(out.Phone) != phoneDigits(existing.Phone) {
		out.PhoneVerified = copyPtr(incoming.PhoneVerified)
	}
	if model.LinkedInKey(out.LinkedInURL) != model.LinkedInKey(existing.LinkedInURL) {
		out.ProfileScrapedAt = copyPtr(incoming.ProfileScrapedAt)
	}

	// Collections union and maps shallow-merge under both strategies.
	out.Skills = UnionStrings(existing.Skills, incoming.Skills, 0)
	out.Certifications = UnionStrings(existing.Certifications, incoming.Certifications, 0)
	out.CompanyInfo = existing.CompanyInfo.Merge(incoming.CompanyInfo)
	out.SocialProfiles = existing.SocialProfiles.Merge(incoming.SocialProfiles)
	out.EnrichmentSource = AccumulateSource(existing.EnrichmentSource, incoming.EnrichmentSource)

	if out.JobID == "" {
		out.JobID = incoming.JobID
	}
	return out
}

// UnionStrings returns a followed by the entries of b not already present,
// compared case-insensitively after trimming. Blank entries are dropped.
// A positive limit caps the result length.
func UnionStrings(a, b []string, limit int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			k := strings.ToLower(s)
			if s == "" || seen[k] {
				continue
			}
			if limit > 0 && len(out) >= limit {
				return out
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

// AccumulateSource appends the contributors in incoming to the comma list in
// existing, keeping first-seen order and dropping repeats.
func AccumulateSource(existing, incoming string) string {
	return strings.Join(UnionStrings(strings.Split(existing, ","), strings.Split(incoming, ","), 0), ",")
}

// unionBy returns a followed by the entries of b whose key is not already
// present. Entries with an empty key are kept as-is.
func unionBy[T any](a, b []T, key func(T) string) []T {
	seen := make(map[string]bool, len(a)+len(b))
	var out []T
	for _, list := range [][]T{a, b} {
		for _, v := range list {
			k := key(v)
			if k != "" && seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

func experienceKey(x model.Experience) string {
	return foldKey(x.Company, x.Title, x.StartDate)
}

func educationKey(x model.Education) string {
	return foldKey(x.School, x.Degree, x.StartDate)
}

func foldKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	k := strings.Join(parts, "|")
	if strings.Trim(k, "|") == "" {
		return ""
	}
	return k
}

func phoneDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func clone(c *model.Candidate) model.Candidate {
	out := *c
	out.Experience = append([]model.Experience(nil), c.Experience...)
	out.Education = append([]model.Education(nil), c.Education...)
	out.Certifications = append([]string(nil), c.Certifications...)
	out.Skills = append([]string(nil), c.Skills...)
	out.AIScoreReasons = append([]string(nil), c.AIScoreReasons...)
	out.CompanyInfo = c.CompanyInfo.Clone()
	out.SocialProfiles = c.SocialProfiles.Clone()
	out.AIScore = copyPtr(c.AIScore)
	out.EmailVerified = copyPtr(c.EmailVerified)
	out.PhoneVerified = copyPtr(c.PhoneVerified)
	out.ProfileScrapedAt = copyPtr(c.ProfileScrapedAt)
	return out
}

func firstNonEmpty(existing, incoming string) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	return incoming
}

func preferNonEmpty(existing, incoming string) string {
	if strings.TrimSpace(incoming) != "" {
		return incoming
	}
	return existing
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func firstPtr[T any](existing, incoming *T) *T {
	if existing != nil {
		return copyPtr(existing)
	}
	return copyPtr(incoming)
}

func preferPtr[T any](existing, incoming *T) *T {
	if incoming != nil {
		return copyPtr(incoming)
	}
	return copyPtr(existing)
}

// maxScore returns whichever pointer holds the higher score; existing wins ties.
func maxScore(existing, incoming *int) *int {
	switch {
	case existing == nil:
		return incoming
	case incoming == nil:
		return existing
	case *incoming > *existing:
		return incoming
	default:
		return existing
	}
}
