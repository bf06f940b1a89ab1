package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/dispatcher"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxBodyBytes          = 1 << 20
)

// Runner starts guarded pipeline runs.
type Runner interface {
	Run(ctx context.Context, query string, maxItems int) (dispatcher.Summary, error)
	RunURLs(ctx context.Context, urls []string) (dispatcher.Summary, error)
}

// AlertLog exposes recently delivered alerts.
type AlertLog interface {
	Recent() []notifier.Alert
}

// Options configures authentication and timeouts.
type Options struct {
	CronSecret       string
	TrustedUserAgent string
	APIKey           string
	RequestTimeout   time.Duration
}

// Deps are the handlers' collaborators. Alerts and Health may be nil.
type Deps struct {
	Runner   Runner
	Postings crawler.PostingStore
	Results  crawler.ResultStore
	Profiles crawler.ProfileStore
	Alerts   AlertLog
	Health   crawler.HealthChecker
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
}

// Server wires HTTP handlers to the run dispatcher and stores.
type Server struct {
	router   chi.Router
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		deps:     deps,
		validate: newValidator(),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))

	// Run routes sit outside the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(cronAuthMiddleware(opts.CronSecret, opts.TrustedUserAgent))
		r.Get("/api/cron/run-pipeline", s.runPipeline)
		r.Post("/api/cron/run-pipeline", s.runPipeline)
	})

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(apiKeyMiddleware(opts.APIKey)).Post("/crawl/urls", s.crawlURLs)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/jobs", s.listJobs)
			r.With(apiKeyMiddleware(opts.APIKey)).Post("/jobs/manual", s.addManualJob)
			r.Get("/jobs/{id}", s.getJob)
			r.Get("/stats", s.stats)
			r.Get("/profile", s.getProfile)
			r.With(apiKeyMiddleware(opts.APIKey)).Put("/profile", s.putProfile)
			r.Get("/alerts", s.recentAlerts)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil && !s.deps.Health.Health(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "fetcher unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	maxItems := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		maxItems = n
	}
	summary, err := s.deps.Runner.Run(runContext(r), query, maxItems)
	s.writeSummary(w, summary, err)
}

type crawlURLsRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=100,dive,required,url"`
}

func (s *Server) crawlURLs(w http.ResponseWriter, r *http.Request) {
	var req crawlURLsRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.deps.Runner.RunURLs(runContext(r), req.URLs)
	s.writeSummary(w, summary, err)
}

// runContext detaches a run from the caller's connection so a disconnect
// never stops a run partway through an item. Request values are kept.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) writeSummary(w http.ResponseWriter, summary dispatcher.Summary, err error) {
	switch {
	case errors.Is(err, dispatcher.ErrBusy):
		writeError(w, http.StatusConflict, dispatcher.ErrBusy.Error())
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, summary)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseViewFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.deps.Results.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.JobView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Results.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Results.Stats(r.Context())
	if err != nil {
		s.logger.Error("job stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfile(r.Context())
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not set")
		return
	}
	if err != nil {
		s.logger.Error("get profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type profileRequest struct {
	Skills             []string `json:"skills" validate:"required,min=1,dive,notblank"`
	MinBudget          float64  `json:"min_budget" validate:"gte=0"`
	PreferredCountries []string `json:"preferred_countries" validate:"omitempty,dive,notblank"`
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	profile := crawler.Profile{
		Skills:             trimAll(req.Skills),
		MinBudget:          req.MinBudget,
		PreferredCountries: trimAll(req.PreferredCountries),
		UpdatedAt:          s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Profiles.UpsertProfile(r.Context(), profile); err != nil {
		s.logger.Error("upsert profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	s.logger.Info("profile updated", zap.Int("skills", len(profile.Skills)), zap.Float64("min_budget", profile.MinBudget))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Preferences updated successfully",
		"data":    profile,
	})
}

func (s *Server) addManualJob(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	posting := manualPosting(id, s.deps.Clock.Now().UTC())
	if err := s.deps.Postings.DeletePostingBySourceID(r.Context(), posting.SourceID); err != nil {
		s.logger.Error("delete manual posting failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to replace manual job")
		return
	}
	if err := s.deps.Postings.InsertPosting(r.Context(), posting); err != nil {
		s.logger.Error("insert manual posting failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to insert manual job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Manual test job added; it will be scored on the next run.",
		"job": map[string]any{
			"id":     posting.ID,
			"title":  posting.Title,
			"skills": posting.Skills,
			"budget": posting.Budget,
		},
	})
}

func (s *Server) recentAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := []notifier.Alert{}
	if s.deps.Alerts != nil {
		alerts = append(alerts, s.deps.Alerts.Recent()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func parseViewFilter(r *http.Request) (crawler.ViewFilter, error) {
	q := r.URL.Query()
	var f crawler.ViewFilter
	var err error
	if f.MinScore, err = optionalFloat(q.Get("min_score"), "min_score"); err != nil {
		return f, err
	}
	if f.MaxScore, err = optionalFloat(q.Get("max_score"), "max_score"); err != nil {
		return f, err
	}
	f.JobType = strings.TrimSpace(q.Get("job_type"))
	f.ExperienceLevel = strings.TrimSpace(q.Get("experience_level"))
	switch sort := q.Get("sort"); sort {
	case "", crawler.SortRelevance, crawler.SortDate, crawler.SortBudget, crawler.SortClient:
		f.Sort = sort
	default:
		return f, errors.New("sort must be one of relevance, date, budget, client")
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > crawler.DefaultViewLimit {
			return f, errors.New("limit must be between 1 and 100")
		}
		f.Limit = n
	}
	return f, nil
}

func optionalFloat(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(name + " must be a number")
	}
	return &v, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
