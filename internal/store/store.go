package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/karla/internal/model"
)

// ErrCorrupt is returned when a persisted job record cannot be decoded.
var ErrCorrupt = eris.New("corrupt job record")

// Store defines the persistence interface for scraping jobs.
//
// Absence is not an error: GetJob and UpdateJob return a nil job and a nil
// error when no record exists for the name, and DeleteJob reports false.
type Store interface {
	CreateJob(ctx context.Context, spec model.JobSpec) (*model.Job, error)
	GetJob(ctx context.Context, name string) (*model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	UpdateJob(ctx context.Context, name string, patch model.JobPatch) (*model.Job, error)
	DeleteJob(ctx context.Context, name string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Clock returns the current time. Stores default to time.Now.
type Clock func() time.Time

func nowUTC(c Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

var (
	_ Store = (*YAMLStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
