package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/resilience"
)

// sqliteTimeLayout is fixed width so lexical order of stored values matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	clock Clock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db, clock: applyOptions(opts).clock}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	name        TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	region      TEXT NOT NULL,
	cities      TEXT NOT NULL DEFAULT '[]',
	schema_name TEXT NOT NULL DEFAULT 'default',
	sources     TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const sqliteJobColumns = `name, query, region, cities, schema_name, sources, status, created_at, updated_at`

// Migrate creates the jobs table, retrying while another process holds the
// database lock.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	err := resilience.Do(ctx, resilience.Policy{Operation: "sqlite migrate"}, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, sqliteMigration)
		return err
	})
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, spec model.JobSpec) (*model.Job, error) {
	if err := model.ValidateName(spec.Name); err != nil {
		return nil, err
	}

	job := model.NewJob(spec, nowUTC(s.clock))
	citiesJSON, sourcesJSON, err := marshalLists(job)
	if err != nil {
		return nil, err
	}

	// Re-creating a name replaces the whole record, timestamps included.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+sqliteJobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			query = excluded.query,
			region = excluded.region,
			cities = excluded.cities,
			schema_name = excluded.schema_name,
			sources = excluded.sources,
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		job.Name, job.Query, job.Region, citiesJSON, job.SchemaName, sourcesJSON,
		string(job.Status), job.Created.Format(sqliteTimeLayout), job.Updated.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert job %s", job.Name)
	}

	zap.L().Debug("job created", zap.String("job", job.Name), zap.String("store", "sqlite"))
	return job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, name string) (*model.Job, error) {
	if err := model.ValidateName(name); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE name = ?`, name)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", name)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs ORDER BY created_at DESC, name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list jobs")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, name string, patch model.JobPatch) (*model.Job, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	job, err := s.GetJob(ctx, name)
	if err != nil || job == nil {
		return nil, err
	}

	patch.Apply(job)
	job.Updated = nowUTC(s.clock)

	citiesJSON, sourcesJSON, err := marshalLists(job)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET query = ?, region = ?, cities = ?, schema_name = ?, sources = ?, status = ?, updated_at = ?
		WHERE name = ?`,
		job.Query, job.Region, citiesJSON, job.SchemaName, sourcesJSON,
		string(job.Status), job.Updated.Format(sqliteTimeLayout), name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update job %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Deleted between read and write.
		return nil, nil
	}

	zap.L().Debug("job updated", zap.String("job", name), zap.String("store", "sqlite"))
	return job, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, name string) (bool, error) {
	if err := model.ValidateName(name); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, name)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete job %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row scannable) (*model.Job, error) {
	var (
		j                    model.Job
		cities, sources      string
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&j.Name, &j.Query, &j.Region, &cities, &j.SchemaName, &sources,
		&status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)

	if err := json.Unmarshal([]byte(cities), &j.Cities); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "sqlite: cities of %s: %v", j.Name, err)
	}
	if err := json.Unmarshal([]byte(sources), &j.Sources); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "sqlite: sources of %s: %v", j.Name, err)
	}

	var err error
	if j.Created, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "sqlite: created_at of %s: %v", j.Name, err)
	}
	if j.Updated, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "sqlite: updated_at of %s: %v", j.Name, err)
	}
	return &j, nil
}

func marshalLists(job *model.Job) (string, string, error) {
	cities, err := json.Marshal(job.Cities)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal cities")
	}
	sources, err := json.Marshal(job.Sources)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal sources")
	}
	return string(cities), string(sources), nil
}
