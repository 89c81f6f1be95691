package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/model"
)

const candidateColumns = `id, workspace_id, job_id, first_name, last_name, email, phone, linkedin_url,
	current_title, current_company, location, headline, about, profile_image_url,
	experience, education, certifications, company_info, social_profiles, skills,
	experience_years, ai_score, ai_score_reasons, data_completeness, email_verified, phone_verified,
	profile_scraped_at, enrichment_source, enrichment_status, created_at, updated_at`

func scanPgCandidate(row pgx.Row) (*model.Candidate, error) {
	var c model.Candidate
	var d candidateDocs
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.JobID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.LinkedInURL,
		&c.CurrentTitle, &c.CurrentCompany, &c.Location, &c.Headline, &c.About, &c.ProfileImageURL,
		&d.experience, &d.education, &d.certifications, &d.companyInfo, &d.socialProfiles, &d.skills,
		&c.ExperienceYears, &c.AIScore, &d.aiReasons, &c.DataCompleteness, &c.EmailVerified, &c.PhoneVerified,
		&c.ProfileScrapedAt, &c.EnrichmentSource, &c.EnrichmentStatus, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := d.decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) findCandidate(ctx context.Context, column, workspaceID, key string) (*model.Candidate, error) {
	if key == "" {
		return nil, nil
	}
	c, err := scanPgCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE workspace_id = $1 AND `+column+` = $2
		ORDER BY created_at ASC LIMIT 1`,
		workspaceID, key,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find candidate by %s", column)
	}
	return c, nil
}

func (s *PostgresStore) FindCandidateByEmailKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "email_key", workspaceID, key)
}

func (s *PostgresStore) FindCandidateByLinkedInKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "linkedin_key", workspaceID, key)
}

func (s *PostgresStore) FindCandidateByNameKey(ctx context.Context, workspaceID, key string) (*model.Candidate, error) {
	return s.findCandidate(ctx, "name_key", workspaceID, key)
}

func (s *PostgresStore) InsertCandidate(ctx context.Context, c *model.Candidate) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO candidates (`+candidateColumns+`, email_key, linkedin_key, name_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)`,
		c.ID, c.WorkspaceID, c.JobID, c.FirstName, c.LastName, c.Email, c.Phone, c.LinkedInURL,
		c.CurrentTitle, c.CurrentCompany, c.Location, c.Headline, c.About, c.ProfileImageURL,
		d.experience, d.education, d.certifications, d.companyInfo, d.socialProfiles, d.skills,
		c.ExperienceYears, c.AIScore, d.aiReasons, c.DataCompleteness, c.EmailVerified, c.PhoneVerified,
		c.ProfileScrapedAt, c.EnrichmentSource, string(c.EnrichmentStatus), c.CreatedAt, c.UpdatedAt,
		emailKey, linkedinKey, nameKey,
	)
	return wrapWrite(err, "postgres: insert candidate")
}

func (s *PostgresStore) UpdateCandidate(ctx context.Context, c *model.Candidate) error {
	d, err := encodeCandidateDocs(c)
	if err != nil {
		return err
	}
	emailKey, linkedinKey, nameKey := c.Keys()

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET job_id = $2, first_name = $3, last_name = $4, email = $5, phone = $6,
			linkedin_url = $7, current_title = $8, current_company = $9, location = $10, headline = $11,
			about = $12, profile_image_url = $13, experience = $14, education = $15, certifications = $16,
			company_info = $17, social_profiles = $18, skills = $19, experience_years = $20, ai_score = $21,
			ai_score_reasons = $22, data_completeness = $23, email_verified = $24, phone_verified = $25,
			profile_scraped_at = $26, enrichment_source = $27, enrichment_status = $28, updated_at = $29,
			email_key = $30, linkedin_key = $31, name_key = $32
		WHERE id = $1`,
		c.ID, c.JobID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.LinkedInURL, c.CurrentTitle, c.CurrentCompany, c.Location, c.Headline,
		c.About, c.ProfileImageURL, d.experience, d.education, d.certifications,
		d.companyInfo, d.socialProfiles, d.skills, c.ExperienceYears, c.AIScore,
		d.aiReasons, c.DataCompleteness, c.EmailVerified, c.PhoneVerified,
		c.ProfileScrapedAt, c.EnrichmentSource, string(c.EnrichmentStatus), c.UpdatedAt,
		emailKey, linkedinKey, nameKey,
	)
	if err != nil {
		return wrapWrite(err, "postgres: update candidate")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: candidate %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanPgCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: candidate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) SetEnrichmentStatus(ctx context.Context, candidateID string, status model.EnrichmentStatus, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE candidates SET enrichment_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now, candidateID,
	)
	return eris.Wrapf(err, "postgres: set enrichment status %s", candidateID)
}

func (s *PostgresStore) CountCandidates(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM candidates WHERE workspace_id = $1`, workspaceID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count candidates")
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *model.Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, workspace_id, title, criteria) VALUES ($1, $2, $3, $4)`,
		j.ID, j.WorkspaceID, j.Title, j.Criteria,
	)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, title, criteria FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.WorkspaceID, &j.Title, &j.Criteria)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return &j, nil
}
