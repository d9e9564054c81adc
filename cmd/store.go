package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acled-ingest/internal/resilience"
	"github.com/sells-group/acled-ingest/internal/store"
)

// connectPolicy is used when opening a Postgres store; a var so tests can
// shorten it.
var connectPolicy = resilience.ConnectPolicy()

// initStore opens the configured store and ensures its schema exists.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		policy := connectPolicy
		policy.OnRetry = resilience.LogRetry("store.connect")
		st, err = resilience.DoVal(ctx, policy, func(ctx context.Context) (store.Store, error) {
			return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
				MaxConns: cfg.Store.MaxConns,
				MinConns: cfg.Store.MinConns,
			})
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.EnsureSchema(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
