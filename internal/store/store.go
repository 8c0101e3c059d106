// Package store archives generated plans so they can be listed, re-read and
// exported later. The archive is optional; with driver "none" Open returns a
// nil Store and plans live only for the request that produced them.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiplanner/internal/config"
	"github.com/sells-group/fiplanner/internal/model"
)

// ErrNotFound is returned by GetPlan for an unknown id.
var ErrNotFound = eris.New("plan not found")

// DefaultListLimit caps ListPlans when no positive limit is given.
const DefaultListLimit = 20

// Store defines the persistence interface for generated plans.
type Store interface {
	SavePlan(ctx context.Context, plan *model.PlanResult) error
	GetPlan(ctx context.Context, id string) (*model.PlanResult, error)
	// ListPlans returns the newest plans first.
	ListPlans(ctx context.Context, limit int) ([]model.PlanResult, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open creates and migrates the store selected by cfg.Driver. It returns
// (nil, nil) for driver "none" or "".
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func notFound(id string) error {
	return eris.Wrapf(ErrNotFound, "store: plan %s", id)
}

func marshalProfile(p model.UserProfile) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal profile")
	}
	return b, nil
}

func unmarshalProfile(data []byte, p *model.UserProfile) error {
	if err := json.Unmarshal(data, p); err != nil {
		return eris.Wrap(err, "store: unmarshal profile")
	}
	return nil
}
