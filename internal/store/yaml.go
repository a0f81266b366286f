package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/karla/internal/model"
)

const (
	yamlExt = ".yaml"

	// listConcurrency bounds parallel record decodes in ListJobs.
	listConcurrency = 8
)

// YAMLStore implements Store with one YAML file per job in a directory.
//
// Writes land in a hidden temp file that is renamed over the record, so a
// reader never sees a partial file. There is no cross-process locking:
// concurrent writers to the same name race and the last rename wins.
type YAMLStore struct {
	dir   string
	clock Clock
}

// NewYAML opens a YAML store rooted at dir, creating the directory if needed.
func NewYAML(dir string, opts ...Option) (*YAMLStore, error) {
	if dir == "" {
		return nil, eris.New("yaml: directory is required")
	}
	s := &YAMLStore{dir: dir, clock: applyOptions(opts).clock}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory holding the job records.
func (s *YAMLStore) Dir() string {
	return s.dir
}

func (s *YAMLStore) Migrate(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "yaml: create directory %s", s.dir)
	}
	return nil
}

func (s *YAMLStore) Close() error {
	return nil
}

func (s *YAMLStore) CreateJob(_ context.Context, spec model.JobSpec) (*model.Job, error) {
	if err := model.ValidateName(spec.Name); err != nil {
		return nil, err
	}

	job := model.NewJob(spec, nowUTC(s.clock))
	if err := s.save(job); err != nil {
		return nil, err
	}

	zap.L().Debug("job created", zap.String("job", job.Name), zap.String("store", "yaml"))
	return job, nil
}

func (s *YAMLStore) GetJob(_ context.Context, name string) (*model.Job, error) {
	if err := model.ValidateName(name); err != nil {
		return nil, err
	}
	return s.read(s.path(name))
}

func (s *YAMLStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "yaml: read directory %s", s.dir)
	}

	var paths []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || filepath.Ext(n) != yamlExt {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, n))
	}

	results := make([]*model.Job, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job, err := s.read(p)
			if errors.Is(err, ErrCorrupt) {
				zap.L().Warn("skipping unreadable job record", zap.String("path", p), zap.String("error", err.Error()))
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "yaml: list jobs")
	}

	jobs := make([]model.Job, 0, len(results))
	for _, j := range results {
		// nil when the file vanished between ReadDir and read.
		if j != nil {
			jobs = append(jobs, *j)
		}
	}
	model.SortJobsNewestFirst(jobs)
	return jobs, nil
}

func (s *YAMLStore) UpdateJob(ctx context.Context, name string, patch model.JobPatch) (*model.Job, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	job, err := s.GetJob(ctx, name)
	if err != nil || job == nil {
		return nil, err
	}

	patch.Apply(job)
	job.Updated = nowUTC(s.clock)
	if err := s.save(job); err != nil {
		return nil, err
	}

	zap.L().Debug("job updated", zap.String("job", job.Name), zap.String("store", "yaml"))
	return job, nil
}

func (s *YAMLStore) DeleteJob(_ context.Context, name string) (bool, error) {
	if err := model.ValidateName(name); err != nil {
		return false, err
	}

	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "yaml: delete job %s", name)
	}

	zap.L().Debug("job deleted", zap.String("job", name), zap.String("store", "yaml"))
	return true, nil
}

func (s *YAMLStore) path(name string) string {
	return filepath.Join(s.dir, name+yamlExt)
}

// read returns nil, nil when the file does not exist.
func (s *YAMLStore) read(path string) (*model.Job, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "yaml: read %s", path)
	}

	var job model.Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "yaml: decode %s: %v", path, err)
	}
	if job.Name == "" {
		return nil, eris.Wrapf(ErrCorrupt, "yaml: %s has no name", path)
	}
	return &job, nil
}

func (s *YAMLStore) save(job *model.Job) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		return eris.Wrapf(err, "yaml: encode job %s", job.Name)
	}

	tmp := filepath.Join(s.dir, "."+job.Name+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "yaml: write job %s", job.Name)
	}
	if err := os.Rename(tmp, s.path(job.Name)); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "yaml: commit job %s", job.Name)
	}
	return nil
}
