package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var planColumns = []string{"id", "text", "model", "profile", "input_tokens", "output_tokens", "created_at"}

const profileJSON = `{"age":30,"monthly_income":"100000","monthly_expenses":"50000","retirement_age":60,"risk_profile":"Medium","current_savings":"0"}`

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS plans`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	p := samplePlan("plan-pg", created)

	mock.ExpectExec(`INSERT INTO plans \(id, text, model, profile, input_tokens, output_tokens, created_at\)`).
		WithArgs("plan-pg", p.Text, p.Model, pgxmock.AnyArg(), int64(410), int64(880), created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SavePlan(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO plans`).
		WillReturnError(errors.New("duplicate key"))

	err := s.SavePlan(context.Background(), samplePlan("dup", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert plan dup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPlan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, text, model, profile, input_tokens, output_tokens, created_at FROM plans WHERE id = \$1`).
		WithArgs("plan-pg").
		WillReturnRows(pgxmock.NewRows(planColumns).
			AddRow("plan-pg", "## Plan", "claude-sonnet-4-5-20250929", []byte(profileJSON), int64(10), int64(20), created))

	got, err := s.GetPlan(context.Background(), "plan-pg")
	require.NoError(t, err)
	assert.Equal(t, "## Plan", got.Text)
	assert.Equal(t, 30, got.Profile.Age)
	assert.Equal(t, "100000", got.Profile.MonthlyIncome.String())
	assert.Equal(t, int64(20), got.OutputTokens)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPlan_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM plans WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPlan(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPlans(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM plans ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows(planColumns).
			AddRow("new", "b", "m", []byte(profileJSON), int64(1), int64(2), now).
			AddRow("old", "a", "m", []byte(profileJSON), int64(1), int64(2), now.Add(-time.Hour)))

	plans, err := s.ListPlans(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "new", plans[0].ID)
	assert.Equal(t, "old", plans[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPlans_BadProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM plans`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(planColumns).
			AddRow("x", "a", "m", []byte("not json"), int64(0), int64(0), time.Now()))

	_, err := s.ListPlans(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal profile")
	assert.NoError(t, mock.ExpectationsWereMet())
}
