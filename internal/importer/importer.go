// Package importer reads candidate rows from CSV and XLSX files.
package importer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Options configures how a file is read.
type Options struct {
	// Source tags every row unless the file has a source column.
	Source string
	// JobID assigns every row to a job unless the file has a job_id column.
	JobID     string
	Delimiter rune   // CSV only, default ','
	SheetName string // XLSX only, default first sheet
}

// ErrNoColumns is returned when the header has no recognized column.
var ErrNoColumns = eris.New("importer: no recognized columns in header")

// ReadFile reads path as CSV or XLSX depending on its extension.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.CandidateInput, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		f, err := os.Open(path) // #nosec G304 -- operator-supplied import path
		if err != nil {
			return nil, eris.Wrap(err, "importer: open file")
		}
		defer f.Close() //nolint:errcheck
		if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		return ReadCSV(ctx, f, opts)
	case ".xlsx":
		return ReadXLSX(ctx, path, opts)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

type field int

const (
	fieldFirstName field = iota + 1
	fieldLastName
	fieldFullName
	fieldEmail
	fieldPhone
	fieldLinkedIn
	fieldTitle
	fieldCompany
	fieldLocation
	fieldHeadline
	fieldSkills
	fieldExperienceYears
	fieldAIScore
	fieldSource
	fieldJobID
	fieldSocial
)

var aliases = map[string]field{
	"first_name": fieldFirstName, "firstname": fieldFirstName, "first": fieldFirstName, "given_name": fieldFirstName,
	"last_name": fieldLastName, "lastname": fieldLastName, "last": fieldLastName, "surname": fieldLastName, "family_name": fieldLastName,
	"name": fieldFullName, "full_name": fieldFullName, "fullname": fieldFullName,
	"email": fieldEmail, "email_address": fieldEmail, "work_email": fieldEmail, "e_mail": fieldEmail,
	"phone": fieldPhone, "phone_number": fieldPhone, "mobile": fieldPhone,
	"linkedin": fieldLinkedIn, "linkedin_url": fieldLinkedIn, "linkedin_profile": fieldLinkedIn, "profile_url": fieldLinkedIn,
	"title": fieldTitle, "current_title": fieldTitle, "job_title": fieldTitle, "position": fieldTitle,
	"company": fieldCompany, "current_company": fieldCompany, "company_name": fieldCompany, "employer": fieldCompany,
	"location": fieldLocation, "city": fieldLocation,
	"headline":         fieldHeadline,
	"skills":           fieldSkills,
	"experience_years": fieldExperienceYears, "years_experience": fieldExperienceYears, "years_of_experience": fieldExperienceYears,
	"ai_score": fieldAIScore, "score": fieldAIScore,
	"source": fieldSource,
	"job_id": fieldJobID, "job": fieldJobID,
	"github": fieldSocial, "twitter": fieldSocial, "website": fieldSocial, "portfolio": fieldSocial,
}

type column struct {
	idx   int
	field field
	name  string
}

// mapHeader resolves header cells to candidate fields. Unknown columns are
// dropped. The first occurrence of a field wins.
func mapHeader(header []string) ([]column, error) {
	var cols []column
	seen := make(map[field]bool)
	for i, h := range header {
		key := normalizeHeader(h)
		f, ok := aliases[key]
		if !ok {
			continue
		}
		if f != fieldSocial && seen[f] {
			continue
		}
		seen[f] = true
		cols = append(cols, column{idx: i, field: f, name: key})
	}
	if len(cols) == 0 {
		return nil, eris.Wrapf(ErrNoColumns, "header %v", header)
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
}

// rowsToInputs converts data rows under header into inputs. Blank rows are
// skipped.
func rowsToInputs(header []string, rows [][]string, opts Options) ([]model.CandidateInput, error) {
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	out := make([]model.CandidateInput, 0, len(rows))
	for n, row := range rows {
		in := model.CandidateInput{Source: opts.Source, JobID: opts.JobID}
		var fullName string
		blank := true
		for _, c := range cols {
			if c.idx >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[c.idx])
			if v == "" {
				continue
			}
			blank = false
			switch c.field {
			case fieldFirstName:
				in.FirstName = v
			case fieldLastName:
				in.LastName = v
			case fieldFullName:
				fullName = v
			case fieldEmail:
				in.Email = v
			case fieldPhone:
				in.Phone = v
			case fieldLinkedIn:
				in.LinkedInURL = v
			case fieldTitle:
				in.CurrentTitle = v
			case fieldCompany:
				in.CurrentCompany = v
			case fieldLocation:
				in.Location = v
			case fieldHeadline:
				in.Headline = v
			case fieldSkills:
				in.Skills = splitList(v)
			case fieldExperienceYears:
				if y, err := strconv.Atoi(v); err == nil && y >= 0 {
					in.ExperienceYears = y
				} else {
					zap.L().Debug("importer: ignoring experience years", zap.Int("row", n+2), zap.String("value", v))
				}
			case fieldAIScore:
				if s, err := strconv.Atoi(v); err == nil && s >= 0 && s <= 100 {
					in.AIScore = &s
				}
			case fieldSource:
				in.Source = v
			case fieldJobID:
				in.JobID = v
			case fieldSocial:
				in.SocialProfiles.Set(c.name, v)
			}
		}
		if blank {
			continue
		}
		if fullName != "" && in.FirstName == "" && in.LastName == "" {
			in.FirstName, in.LastName = splitName(fullName)
		}
		out = append(out, in)
	}
	return out, nil
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitName splits on the first space: "Mary Ann Smith" yields "Mary" and
// "Ann Smith".
func splitName(s string) (first, last string) {
	first, last, _ = strings.Cut(strings.Join(strings.Fields(s), " "), " ")
	return first, last
}
