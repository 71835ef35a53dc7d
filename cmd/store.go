package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tazflow/internal/store"
)

// initStore opens and migrates the run store. It returns nil when no
// sqlite_path is configured.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.SQLitePath == "" {
		return nil, nil
	}
	st, err := store.NewSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that cannot run without one.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.sqlite_path is required (TAZFLOW_STORE_SQLITE_PATH)")
	}
	return st, nil
}
