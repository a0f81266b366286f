package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/store"
)

// openStore constructs the configured job store and prepares it for use.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch a.cfg.Store.Driver {
	case "yaml":
		var ys *store.YAMLStore
		ys, err = store.NewYAML(a.cfg.Store.Dir)
		st = ys
	case "sqlite":
		path := a.cfg.SQLitePath()
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, eris.Wrap(mkErr, "sqlite: create database directory")
		}
		var ss *store.SQLiteStore
		ss, err = store.NewSQLite(path)
		st = ss
	case "postgres":
		var ps *store.PostgresStore
		ps, err = store.NewPostgres(ctx, a.cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: a.cfg.Store.MaxConns})
		st = ps
	default:
		return nil, eris.Errorf("unsupported store driver: %s", a.cfg.Store.Driver)
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

// withStore opens the store for the duration of fn.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx := cmd.Context()
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st)
}

// requireJob loads a job, reporting a missing one to the user as an exit-1 error.
func requireJob(ctx context.Context, cmd *cobra.Command, st store.Store, name string) (*model.Job, error) {
	job, err := st.GetJob(ctx, name)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobNotFound(cmd, name)
	}
	return job, nil
}

func jobNotFound(cmd *cobra.Command, name string) error {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "✗ Job '%s' not found\n", name)
	return &exitError{code: exitFailure, msg: fmt.Sprintf("job %q not found", name)}
}
