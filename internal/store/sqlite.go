package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fiplanner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS plans (
	id            TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	model         TEXT NOT NULL,
	profile       TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePlan(ctx context.Context, plan *model.PlanResult) error {
	profile, err := marshalProfile(plan.Profile)
	if err != nil {
		return err
	}
	createdAt := plan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, text, model, profile, input_tokens, output_tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Text, plan.Model, string(profile), plan.InputTokens, plan.OutputTokens, createdAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert plan %s", plan.ID)
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*model.PlanResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, model, profile, input_tokens, output_tokens, created_at FROM plans WHERE id = ?`,
		id,
	)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get plan %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListPlans(ctx context.Context, limit int) ([]model.PlanResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, model, profile, input_tokens, output_tokens, created_at FROM plans ORDER BY created_at DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list plans")
	}
	defer rows.Close()

	var plans []model.PlanResult
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan plan")
		}
		plans = append(plans, *p)
	}
	return plans, eris.Wrap(rows.Err(), "sqlite: list plans iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

// scanPlan returns sql.ErrNoRows unwrapped so callers can map it.
func scanPlan(row scannable) (*model.PlanResult, error) {
	var (
		p       model.PlanResult
		profile string
	)
	if err := row.Scan(&p.ID, &p.Text, &p.Model, &profile, &p.InputTokens, &p.OutputTokens, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalProfile([]byte(profile), &p.Profile); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
