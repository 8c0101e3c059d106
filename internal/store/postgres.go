package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fiplanner/internal/model"
)

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p, closeFn: p.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS plans (
	id            TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	model         TEXT NOT NULL,
	profile       JSONB NOT NULL,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans(created_at DESC);
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

func (s *PostgresStore) SavePlan(ctx context.Context, plan *model.PlanResult) error {
	profile, err := marshalProfile(plan.Profile)
	if err != nil {
		return err
	}
	createdAt := plan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO plans (id, text, model, profile, input_tokens, output_tokens, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		plan.ID, plan.Text, plan.Model, profile, plan.InputTokens, plan.OutputTokens, createdAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert plan %s", plan.ID)
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*model.PlanResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, text, model, profile, input_tokens, output_tokens, created_at FROM plans WHERE id = $1`,
		id,
	)
	p, err := scanPgPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get plan %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, limit int) ([]model.PlanResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, model, profile, input_tokens, output_tokens, created_at FROM plans ORDER BY created_at DESC LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list plans")
	}
	defer rows.Close()

	var plans []model.PlanResult
	for rows.Next() {
		p, err := scanPgPlan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan plan")
		}
		plans = append(plans, *p)
	}
	return plans, eris.Wrap(rows.Err(), "postgres: list plans iterate")
}

func scanPgPlan(row pgx.Row) (*model.PlanResult, error) {
	var (
		p       model.PlanResult
		profile []byte
	)
	if err := row.Scan(&p.ID, &p.Text, &p.Model, &profile, &p.InputTokens, &p.OutputTokens, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalProfile(profile, &p.Profile); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
