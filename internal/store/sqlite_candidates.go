package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCandidate(row rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	var d candidateDocs
	var tc timeCols
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.JobID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.LinkedInURL,
		&c.CurrentTitle, &c.CurrentCompany, &c.Location, &c.Headline, &c.About, &c.ProfileImageURL,
		&d.experience, &d.education, &d.certifications, &d.companyInfo, &d.socialProfiles, &d.skills,
		&c.ExperienceYears, &c.AIScore, &d.aiReasons, &c.DataCompleteness, &c.EmailVerified, &c.PhoneVerified,
		tc.maybe(&c.ProfileScrapedAt), &c.EnrichmentSource, &c.EnrichmentStatus,
		tc.at(&c.CreatedAt), tc.at(&c.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}
	if err := tc.decode(); err != nil {
		return nil, err
	}
	if err := d.decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) findCandidate(ctx context.Context, column, workspaceID, key string) (*model.Candidate, error) {
	if key == "" {
		return nil, nil
	}
	c, err := scanSQLiteCandidate(s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE workspace_id = ? AND `+column+` = ?
		ORDER BY created_at ASC LIMIT 1`,
		workspaceID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find candidate by %s", column)
	}
	return c, nil
}

func (s *SQLiteStore) FindCandidateByEmailKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "email_key", workspaceID, key)
}

func (s *SQLiteStore) FindCandidateByLinkedInKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "linkedin_key", workspaceID, key)
}

func (s *SQLiteStore) FindCandidateByNameKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "name_key", workspaceID, key)
}

func (s *SQLiteStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.EnrichmentStatus == "" {
		c.EnrichmentStatus = model.EnrichmentPending
	}
	d, err := encodeCandidateDocs(c)
	if err != nil {
		return err
	}
	emailKey, linkedinKey, nameKey := c.Keys()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidates (`+candidateColumns+`, email_key, linkedin_key, name_key)
		VALUES (`+placeholders(34)+`)`,
		c.ID, c.WorkspaceID, c.JobID, c.FirstName, c.LastName, c.Email, c.Phone, c.LinkedInURL,
		c.CurrentTitle, c.CurrentCompany, c.Location, c.Headline, c.About, c.ProfileImageURL,
		string(d.experience), string(d.education), string(d.certifications), string(d.companyInfo),
		string(d.socialProfiles), string(d.skills),
		c.ExperienceYears, c.AIScore, string(d.aiReasons), c.DataCompleteness, c.EmailVerified, c.PhoneVerified,
		tsPtr(c.ProfileScrapedAt), c.EnrichmentSource, string(c.EnrichmentStatus), ts(c.CreatedAt), ts(c.UpdatedAt),
		emailKey, linkedinKey, nameKey,
	)
	return wrapSQLiteWrite(err, "sqlite: insert candidate")
}

func (s *SQLiteStore) UpdateCandidate(ctx context.Context, c *model.Candidate) error {
	d, err := encodeCandidateDocs(c)
	if err != nil {
		return err
	}
	emailKey, linkedinKey, nameKey := c.Keys()

	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET job_id = ?, first_name = ?, last_name = ?, email = ?, phone = ?,
			linkedin_url = ?, current_title = ?, current_company = ?, location = ?, headline = ?,
			about = ?, profile_image_url = ?, experience = ?, education = ?, certifications = ?,
			company_info = ?, social_profiles = ?, skills = ?, experience_years = ?, ai_score = ?,
			ai_score_reasons = ?, data_completeness = ?, email_verified = ?, phone_verified = ?,
			profile_scraped_at = ?, enrichment_source = ?, enrichment_status = ?, updated_at = ?,
			email_key = ?, linkedin_key = ?, name_key = ?
		WHERE id = ?`,
		c.JobID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.LinkedInURL, c.CurrentTitle, c.CurrentCompany, c.Location, c.Headline,
		c.About, c.ProfileImageURL, string(d.experience), string(d.education), string(d.certifications),
		string(d.companyInfo), string(d.socialProfiles), string(d.skills), c.ExperienceYears, c.AIScore,
		string(d.aiReasons), c.DataCompleteness, c.EmailVerified, c.PhoneVerified,
		tsPtr(c.ProfileScrapedAt), c.EnrichmentSource, string(c.EnrichmentStatus), ts(c.UpdatedAt),
		emailKey, linkedinKey, nameKey,
		c.ID,
	)
	if err != nil {
		return wrapSQLiteWrite(err, "sqlite: update candidate")
	}
	return checkRowsAffected(res, "candidate", c.ID)
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanSQLiteCandidate(s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: candidate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) SetEnrichmentStatus(ctx context.Context, candidateID string, status model.EnrichmentStatus, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET enrichment_status = ?, updated_at = ? WHERE id = ?`,
		string(status), ts(now), candidateID,
	)
	return eris.Wrapf(err, "sqlite: set enrichment status %s", candidateID)
}

func (s *SQLiteStore) CountCandidates(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM candidates WHERE workspace_id = ?`, workspaceID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count candidates")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, workspace_id, title, criteria) VALUES (?, ?, ?, ?)`,
		j.ID, j.WorkspaceID, j.Title, j.Criteria,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, title, criteria FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.WorkspaceID, &j.Title, &j.Criteria)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return &j, nil
}
