package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queue statements prepared on each
// new connection.
var preparedStatements = map[string]string{
	"count_pending_tasks":  sqlCountPendingTasks,
	"count_pending_emails": sqlCountPendingEmails,
	"increment_usage":      sqlIncrementUsage,
	"is_suppressed":        sqlIsSuppressed,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	criteria     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS candidates (
	id                 TEXT PRIMARY KEY,
	workspace_id       TEXT NOT NULL,
	job_id             TEXT NOT NULL DEFAULT '',
	first_name         TEXT NOT NULL DEFAULT '',
	last_name          TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	linkedin_url       TEXT NOT NULL DEFAULT '',
	current_title      TEXT NOT NULL DEFAULT '',
	current_company    TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	headline           TEXT NOT NULL DEFAULT '',
	about              TEXT NOT NULL DEFAULT '',
	profile_image_url  TEXT NOT NULL DEFAULT '',
	experience         JSONB NOT NULL DEFAULT '[]',
	education          JSONB NOT NULL DEFAULT '[]',
	certifications     JSONB NOT NULL DEFAULT '[]',
	company_info       JSONB NOT NULL DEFAULT '{}',
	social_profiles    JSONB NOT NULL DEFAULT '{}',
	skills             JSONB NOT NULL DEFAULT '[]',
	experience_years   INTEGER NOT NULL DEFAULT 0,
	ai_score           INTEGER,
	ai_score_reasons   JSONB NOT NULL DEFAULT '[]',
	data_completeness  INTEGER NOT NULL DEFAULT 0,
	email_verified     BOOLEAN,
	phone_verified     BOOLEAN,
	profile_scraped_at TIMESTAMPTZ,
	enrichment_source  TEXT NOT NULL DEFAULT '',
	enrichment_status  TEXT NOT NULL DEFAULT 'pending',
	email_key          TEXT NOT NULL DEFAULT '',
	linkedin_key       TEXT NOT NULL DEFAULT '',
	name_key           TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_candidates_email ON candidates(workspace_id, email_key) WHERE email_key <> '';
CREATE UNIQUE INDEX IF NOT EXISTS uq_candidates_linkedin ON candidates(workspace_id, linkedin_key) WHERE linkedin_key <> '';
CREATE INDEX IF NOT EXISTS idx_candidates_name ON candidates(workspace_id, name_key) WHERE name_key <> '';

CREATE TABLE IF NOT EXISTS enrichment_tasks (
	id              TEXT PRIMARY KEY,
	candidate_id    TEXT NOT NULL REFERENCES candidates(id),
	workspace_id    TEXT NOT NULL,
	type            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        INTEGER NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	max_attempts    INTEGER NOT NULL DEFAULT 3,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_error      TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_enrichment_tasks_open ON enrichment_tasks(candidate_id, type) WHERE status IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_enrichment_tasks_claim ON enrichment_tasks(workspace_id, priority, next_attempt_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_enrichment_tasks_candidate ON enrichment_tasks(candidate_id);

CREATE TABLE IF NOT EXISTS sender_accounts (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	from_address TEXT NOT NULL,
	smtp_host    TEXT NOT NULL,
	smtp_port    INTEGER NOT NULL DEFAULT 587,
	username     TEXT NOT NULL DEFAULT '',
	password     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS campaigns (
	id                TEXT PRIMARY KEY,
	workspace_id      TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'draft',
	sender_account_id TEXT NOT NULL,
	from_address      TEXT NOT NULL,
	reply_to          TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL,
	body              TEXT NOT NULL,
	total_sent        INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_steps (
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	step        INTEGER NOT NULL,
	delay_days  INTEGER NOT NULL,
	subject     TEXT NOT NULL,
	body        TEXT NOT NULL,
	PRIMARY KEY (campaign_id, step)
);

CREATE TABLE IF NOT EXISTS campaign_sends (
	id                  TEXT PRIMARY KEY,
	campaign_id         TEXT NOT NULL REFERENCES campaigns(id),
	candidate_id        TEXT NOT NULL,
	workspace_id        TEXT NOT NULL,
	follow_up_step      INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'pending',
	to_address          TEXT NOT NULL,
	provider_message_id TEXT NOT NULL DEFAULT '',
	sent_at             TIMESTAMPTZ,
	opened_at           TIMESTAMPTZ,
	clicked_at          TIMESTAMPTZ,
	replied_at          TIMESTAMPTZ,
	bounced_at          TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_campaign_sends_step ON campaign_sends(campaign_id, candidate_id, follow_up_step) WHERE status <> 'cancelled';
CREATE INDEX IF NOT EXISTS idx_campaign_sends_message ON campaign_sends(provider_message_id) WHERE provider_message_id <> '';

CREATE TABLE IF NOT EXISTS email_queue (
	id                  TEXT PRIMARY KEY,
	workspace_id        TEXT NOT NULL,
	sender_account_id   TEXT NOT NULL,
	campaign_send_id    TEXT NOT NULL DEFAULT '',
	from_address        TEXT NOT NULL,
	to_address          TEXT NOT NULL,
	reply_to            TEXT NOT NULL DEFAULT '',
	subject             TEXT NOT NULL,
	html_body           TEXT NOT NULL,
	text_body           TEXT NOT NULL DEFAULT '',
	headers             JSONB NOT NULL DEFAULT '{}',
	status              TEXT NOT NULL DEFAULT 'pending',
	priority            INTEGER NOT NULL DEFAULT 0,
	attempts            INTEGER NOT NULL DEFAULT 0,
	max_attempts        INTEGER NOT NULL DEFAULT 3,
	next_attempt_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	scheduled_for       TIMESTAMPTZ,
	provider_message_id TEXT NOT NULL DEFAULT '',
	sent_at             TIMESTAMPTZ,
	last_error          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_email_queue_claim ON email_queue(workspace_id, priority, next_attempt_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS suppressions (
	workspace_id TEXT NOT NULL,
	email_key    TEXT NOT NULL,
	reason       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (workspace_id, email_key)
);

CREATE TABLE IF NOT EXISTS usage_records (
	workspace_id TEXT NOT NULL,
	month        TEXT NOT NULL,
	provider     TEXT NOT NULL,
	calls        BIGINT NOT NULL DEFAULT 0,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace_id, month, provider)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// wrapWrite maps unique violations to ErrDuplicate.
func wrapWrite(err error, msg string) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return eris.Wrap(ErrDuplicate, msg)
	}
	return eris.Wrap(err, msg)
}
