package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// EmailKey is the match key for an email address: trimmed and lower-cased.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LinkedInKey normalizes a LinkedIn profile URL so that scheme, "www.",
// query string, fragment, trailing slash and letter case never cause a miss.
func LinkedInKey(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}
	u = strings.ToLower(u)
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}

// NameKey is the weakest match key: first name, last name and current
// company, Unicode case-folded. It is empty unless all three are present.
func NameKey(first, last, company string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	company = strings.TrimSpace(company)
	if first == "" || last == "" || company == "" {
		return ""
	}
	// Casers carry state, so each key gets its own.
	fold := cases.Fold()
	return fold.String(first) + "|" + fold.String(last) + "|" + fold.String(company)
}

// Keys returns the three match keys of a candidate.
func (c *Candidate) Keys() (email, linkedin, name string) {
	return EmailKey(c.Email), LinkedInKey(c.LinkedInURL), NameKey(c.FirstName, c.LastName, c.CurrentCompany)
}
