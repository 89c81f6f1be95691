package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store using modernc.org/sqlite.
//
// Timestamps are stored as fixed-width UTC text so that string comparison
// in SQL matches time order. The pool holds a single connection; callers
// inside a transaction must only use the transaction handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	experience         TEXT NOT NULL DEFAULT '[]',
	education          TEXT NOT NULL DEFAULT '[]',
	certifications     TEXT NOT NULL DEFAULT '[]',
	company_info       TEXT NOT NULL DEFAULT '{}',
	social_profiles    TEXT NOT NULL DEFAULT '{}',
	skills             TEXT NOT NULL DEFAULT '[]',
	experience_years   INTEGER NOT NULL DEFAULT 0,
	ai_score           INTEGER,
	ai_score_reasons   TEXT NOT NULL DEFAULT '[]',
	data_completeness  INTEGER NOT NULL DEFAULT 0,
	email_verified     INTEGER,
	phone_verified     INTEGER,
	profile_scraped_at TEXT,
	enrichment_source  TEXT NOT NULL DEFAULT '',
	enrichment_status  TEXT NOT NULL DEFAULT 'pending',
	email_key          TEXT NOT NULL DEFAULT '',
	linkedin_key       TEXT NOT NULL DEFAULT '',
	name_key           TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
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
	next_attempt_at TEXT NOT NULL,
	last_error      TEXT NOT NULL DEFAULT '',
	provider        TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	completed_at    TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_enrichment_tasks_open ON enrichment_tasks(candidate_id, type) WHERE status IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_enrichment_tasks_claim ON enrichment_tasks(workspace_id, status, priority, next_attempt_at);
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
	created_at        TEXT NOT NULL
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
	sent_at             TEXT,
	opened_at           TEXT,
	clicked_at          TEXT,
	replied_at          TEXT,
	bounced_at          TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_campaign_sends_step ON campaign_sends(campaign_id, candidate_id, follow_up_step) WHERE status <> 'cancelled';
CREATE INDEX IF NOT EXISTS idx_campaign_sends_message ON campaign_sends(provider_message_id);

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
	headers             TEXT NOT NULL DEFAULT '{}',
	status              TEXT NOT NULL DEFAULT 'pending',
	priority            INTEGER NOT NULL DEFAULT 0,
	attempts            INTEGER NOT NULL DEFAULT 0,
	max_attempts        INTEGER NOT NULL DEFAULT 3,
	next_attempt_at     TEXT NOT NULL,
	scheduled_for       TEXT,
	provider_message_id TEXT NOT NULL DEFAULT '',
	sent_at             TEXT,
	last_error          TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_queue_claim ON email_queue(workspace_id, status, priority, next_attempt_at);

CREATE TABLE IF NOT EXISTS suppressions (
	workspace_id TEXT NOT NULL,
	email_key    TEXT NOT NULL,
	reason       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	PRIMARY KEY (workspace_id, email_key)
);

CREATE TABLE IF NOT EXISTS usage_records (
	workspace_id TEXT NOT NULL,
	month        TEXT NOT NULL,
	provider     TEXT NOT NULL,
	calls        INTEGER NOT NULL DEFAULT 0,
	cost_usd     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace_id, month, provider)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction on the store's only connection.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

const tsLayout = "2006-01-02T15:04:05.000000000Z"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// timeCols collects text-encoded time columns during a scan and decodes
// them into their destinations afterwards.
type timeCols struct {
	req    []*string
	reqDst []*time.Time
	opt    []*sql.NullString
	optDst []**time.Time
}

func (tc *timeCols) at(dst *time.Time) any {
	s := new(string)
	tc.req = append(tc.req, s)
	tc.reqDst = append(tc.reqDst, dst)
	return s
}

func (tc *timeCols) maybe(dst **time.Time) any {
	ns := new(sql.NullString)
	tc.opt = append(tc.opt, ns)
	tc.optDst = append(tc.optDst, dst)
	return ns
}

func (tc *timeCols) decode() error {
	for i, s := range tc.req {
		t, err := parseTS(*s)
		if err != nil {
			return err
		}
		*tc.reqDst[i] = t
	}
	for i, ns := range tc.opt {
		t, err := parseNullTS(*ns)
		if err != nil {
			return err
		}
		*tc.optDst[i] = t
	}
	return nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func wrapSQLiteWrite(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isSQLiteUnique(err) {
		return eris.Wrap(ErrDuplicate, msg)
	}
	return eris.Wrap(err, msg)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
