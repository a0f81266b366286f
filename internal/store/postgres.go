package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/resilience"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it as well.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool  Pool
	clock Clock
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(0)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := resilience.Do(ctx, resilience.Policy{Operation: "postgres ping"}, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool, opts...), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, clock: applyOptions(opts).clock}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	name        TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	region      TEXT NOT NULL,
	cities      TEXT[] NOT NULL DEFAULT '{}',
	schema_name TEXT NOT NULL DEFAULT 'default',
	sources     TEXT[] NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
`

const pgJobColumns = `name, query, region, cities, schema_name, sources, status, created_at, updated_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, spec model.JobSpec) (*model.Job, error) {
	if err := model.ValidateName(spec.Name); err != nil {
		return nil, err
	}

	job := model.NewJob(spec, nowUTC(s.clock))
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+pgJobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			query = EXCLUDED.query,
			region = EXCLUDED.region,
			cities = EXCLUDED.cities,
			schema_name = EXCLUDED.schema_name,
			sources = EXCLUDED.sources,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		job.Name, job.Query, job.Region, job.Cities, job.SchemaName, job.Sources,
		string(job.Status), job.Created, job.Updated,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert job %s", job.Name)
	}

	zap.L().Debug("job created", zap.String("job", job.Name), zap.String("store", "postgres"))
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, name string) (*model.Job, error) {
	if err := model.ValidateName(name); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM jobs WHERE name = $1`, name)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", name)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM jobs ORDER BY created_at DESC, name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, name string, patch model.JobPatch) (*model.Job, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	job, err := s.GetJob(ctx, name)
	if err != nil || job == nil {
		return nil, err
	}

	patch.Apply(job)
	job.Updated = nowUTC(s.clock)

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET query = $1, region = $2, cities = $3, schema_name = $4, sources = $5, status = $6, updated_at = $7
		WHERE name = $8`,
		job.Query, job.Region, job.Cities, job.SchemaName, job.Sources,
		string(job.Status), job.Updated, name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update job %s", name)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	zap.L().Debug("job updated", zap.String("job", name), zap.String("store", "postgres"))
	return job, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, name string) (bool, error) {
	if err := model.ValidateName(name); err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE name = $1`, name)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete job %s", name)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPGJob(row scannable) (*model.Job, error) {
	var (
		j      model.Job
		status string
	)
	if err := row.Scan(&j.Name, &j.Query, &j.Region, &j.Cities, &j.SchemaName, &j.Sources,
		&status, &j.Created, &j.Updated); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.Created = j.Created.UTC()
	j.Updated = j.Updated.UTC()
	if j.Cities == nil {
		j.Cities = []string{}
	}
	if j.Sources == nil {
		j.Sources = []string{}
	}
	return &j, nil
}
