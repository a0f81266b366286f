package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/store"
)

func newTestServer(t *testing.T, opts Options) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewYAML(filepath.Join(t.TempDir(), "jobs"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = st.CreateJob(ctx, model.JobSpec{Name: "paris-music", Query: "live music venues", Region: "India"})
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, model.JobSpec{Name: "berlin-clubs", Query: "techno clubs", Region: "europe"})
	require.NoError(t, err)

	return NewServer(st, opts), st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListJobs(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGetJob(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/jobs/paris-music", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "live music venues", job.Query)
	assert.Equal(t, model.JobStatusPending, job.Status)

	rec = do(t, h, http.MethodGet, "/jobs/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"job not found"}`, rec.Body.String())
}

func TestGetJob_InvalidName(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/jobs/.hidden", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobSources(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/jobs/paris-music/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body JobSources
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "paris-music", body.Job.Name)
	assert.Len(t, body.Sources, 6)

	rec = do(t, h, http.MethodGet, "/jobs/berlin-clubs/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Sources)
	assert.Empty(t, body.Sources)
}

func TestPatchJob(t *testing.T) {
	s, st := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodPatch, "/jobs/paris-music", `{"status":"running"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	job, err := st.GetJob(context.Background(), "paris-music")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, "live music venues", job.Query)
}

func TestPatchJob_StatusCaseInsensitive(t *testing.T) {
	s, st := newTestServer(t, Options{})

	rec := do(t, s.Handler(), http.MethodPatch, "/jobs/paris-music", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	job, err := st.GetJob(context.Background(), "paris-music")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestPatchJob_Rejections(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown field", "/jobs/paris-music", `{"created":"2020-01-01"}`, http.StatusBadRequest},
		{"invalid status", "/jobs/paris-music", `{"status":"archived"}`, http.StatusBadRequest},
		{"empty patch", "/jobs/paris-music", `{}`, http.StatusBadRequest},
		{"malformed", "/jobs/paris-music", `{"query":`, http.StatusBadRequest},
		{"missing job", "/jobs/ghost", `{"query":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestDeleteJob(t *testing.T) {
	s, st := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, http.MethodDelete, "/jobs/berlin-clubs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	job, err := st.GetJob(context.Background(), "berlin-clubs")
	require.NoError(t, err)
	assert.Nil(t, job)

	rec = do(t, h, http.MethodDelete, "/jobs/berlin-clubs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 2})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://dash.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginsDeniesAll(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcard(t *testing.T) {
	s, _ := newTestServer(t, Options{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
