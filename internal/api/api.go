// Package api exposes the job store over a small JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/sources"
	"github.com/sells-group/karla/internal/store"
)

// maxBodyBytes caps PATCH request bodies.
const maxBodyBytes = 1 << 20

// Options configures the API handler.
type Options struct {
	RateLimit      float64  // requests per second across all clients
	RateBurst      int      // token bucket size
	AllowedOrigins []string // CORS origins; "*" allows any, empty allows none
}

// Server serves the job API.
type Server struct {
	store   store.Store
	limiter *rate.Limiter
	origins []string
}

// NewServer creates a Server over st.
func NewServer(st store.Store, opts Options) *Server {
	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Server{
		store:   st,
		limiter: rate.NewLimiter(limit, burst),
		origins: opts.AllowedOrigins,
	}
}

// JobSources is the response body of GET /jobs/{name}/sources.
type JobSources struct {
	Job     model.Job        `json:"job"`
	Sources []sources.Source `json:"sources"`
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	corsOpts := cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}
	if len(s.origins) == 0 {
		// go-chi/cors treats an empty list as "*".
		corsOpts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	r.Use(cors.Handler(corsOpts))
	r.Use(s.rateLimit)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Patch("/", s.patchJob)
			r.Delete("/", s.deleteJob)
			r.Get("/sources", s.jobSources)
		})
	})

	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) jobSources(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	list := sources.Lookup(job.Region)
	if list == nil {
		list = []sources.Source{}
	}
	writeJSON(w, http.StatusOK, JobSources{Job: *job, Sources: list})
}

func (s *Server) patchJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patch, err := model.DecodeJobPatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "patch names no fields")
		return
	}

	job, err := s.store.UpdateJob(r.Context(), name, patch)
	if s.handleStoreError(w, r, err) {
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.DeleteJob(r.Context(), chi.URLParam(r, "name"))
	if s.handleStoreError(w, r, err) {
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadJob writes a 404 or error response and returns false when the job
// cannot be served.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "name"))
	if s.handleStoreError(w, r, err) {
		return nil, false
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

// handleStoreError writes a response for err and reports whether it did.
func (s *Server) handleStoreError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, model.ErrInvalidName), errors.Is(err, model.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, err)
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
