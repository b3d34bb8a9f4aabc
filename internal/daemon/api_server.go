package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelscout/internal/api"
	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/query"
	"reelscout/internal/services"
	"reelscout/internal/store"
	"reelscout/internal/syncer"
)

const (
	apiRateLimit       = 120
	apiRateLimitWindow = time.Minute
	defaultRunsLimit   = 20
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = srv.routes(cfg.Paths.APIToken)
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(apiRateLimit, apiRateLimitWindow))
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(token))
			r.Get("/platforms", s.handlePlatforms)
			r.Post("/platforms/{key}/sync", s.handleTriggerSync)
			r.Get("/platforms/{key}/movies", s.handleMovies)
			r.Get("/platforms/{key}/missing", s.handleMissing)
			r.Get("/movie/{imdbId}", s.handleMovie)
			r.Get("/runs", s.handleRuns)
			r.Get("/runs/{id}", s.handleRun)
			r.Post("/runs/{id}/cancel", s.handleCancelRun)
			r.Get("/cache/stats", s.handleCacheStats)
		})
	})
	return r
}

// listen binds the API address so bind errors surface from Daemon.Start.
func (s *apiServer) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) String() string { return "api-server" }

// Serve implements suture.Service.
func (s *apiServer) Serve(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		s.reset()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		s.reset()
		return ctx.Err()
	}
}

func (s *apiServer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.server = nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	d := s.daemon
	status := d.Status(r.Context())
	now := time.Now()
	payload := api.Health{
		Status:       "ok",
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		ActiveRuns:   make([]api.SyncRun, 0, len(status.ActiveRuns)),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = logging.Timestamp(status.StartedAt)
	}
	if status.NextScheduled != nil {
		payload.NextScheduled = logging.Timestamp(*status.NextScheduled)
	}
	for i := range status.ActiveRuns {
		payload.ActiveRuns = append(payload.ActiveRuns, api.FromSyncRun(&status.ActiveRuns[i], now))
	}
	code := http.StatusOK
	if err := d.store.Ping(r.Context()); err != nil {
		payload.Status = "degraded"
		payload.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, payload)
}

func (s *apiServer) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	d := s.daemon
	summaries, err := d.store.ListSnapshots(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byKey := make(map[string]store.SnapshotSummary, len(summaries))
	for _, summary := range summaries {
		byKey[summary.PlatformKey] = summary
	}

	now := time.Now()
	out := api.PlatformList{Platforms: make([]api.Platform, 0, len(d.cfg.Platforms))}
	for _, p := range d.cfg.Platforms {
		entry := api.Platform{Key: p.Key, Name: p.Name, Country: p.Country, Language: p.Language}
		if summary, ok := byKey[p.Key]; ok {
			entry.SnapshotTitles = summary.RecordCount
			entry.FetchedAt = logging.Timestamp(summary.FetchedAt)
			entry.Stale = !summary.Fresh(now)
		}
		latest, err := d.store.LatestRun(r.Context(), p.Key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if latest != nil {
			run := api.FromSyncRun(latest, now)
			entry.LatestRun = &run
		}
		out.Platforms = append(out.Platforms, entry)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	runID, err := s.daemon.orch.TriggerSync(r.Context(), key, store.TriggerManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	platform, _ := s.daemon.cfg.Platform(key)
	s.writeJSON(w, http.StatusAccepted, api.TriggerResponse{RunID: runID, Platform: platform.Key})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.daemon.orch.GetSyncStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSyncRun(run, time.Now()))
}

func (s *apiServer) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := s.daemon.orch.Cancel(runID); err != nil {
		s.writeError(w, r, err)
		return
	}
	run, err := s.daemon.orch.GetSyncStatus(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.FromSyncRun(run, time.Now()))
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit := defaultRunsLimit
	if raw := strings.TrimSpace(params.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "runs", "limit must be a positive integer", nil))
			return
		}
		limit = min(parsed, 500)
	}
	runs, err := s.daemon.store.ListRuns(r.Context(), params.Get("platform"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunList{Runs: api.FromSyncRuns(runs, time.Now())})
}

func (s *apiServer) handleMovies(w http.ResponseWriter, r *http.Request) {
	filters, limit, offset, err := parseMovieParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.daemon.query.Page(r.Context(), chi.URLParam(r, "key"), filters, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromQueryResult(res))
}

func (s *apiServer) handleMovie(w http.ResponseWriter, r *http.Request) {
	imdbID := chi.URLParam(r, "imdbId")
	movies, err := s.daemon.query.MovieByIMDb(r.Context(), imdbID, r.URL.Query().Get("platform"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMovieLookup(imdbID, movies))
}

func parseMovieParams(r *http.Request) (query.Filters, int, int, error) {
	params := r.URL.Query()
	var (
		filters query.Filters
		limit   int
		offset  int
		err     error
	)
	invalid := func(name string) error {
		return services.Wrap(services.ErrValidation, "api", "movies", name+" is not a valid number", nil)
	}
	filters.Genre = strings.TrimSpace(params.Get("genre"))
	if filters.MinRating, err = parseOptionalFloat(params.Get("min_rating")); err != nil {
		return filters, 0, 0, invalid("min_rating")
	}
	if filters.MaxRating, err = parseOptionalFloat(params.Get("max_rating")); err != nil {
		return filters, 0, 0, invalid("max_rating")
	}
	if filters.Year, err = parseOptionalInt(params.Get("year")); err != nil {
		return filters, 0, 0, invalid("year")
	}
	if limit, err = parseOptionalInt(params.Get("limit")); err != nil {
		return filters, 0, 0, invalid("limit")
	}
	if offset, err = parseOptionalInt(params.Get("offset")); err != nil {
		return filters, 0, 0, invalid("offset")
	}
	switch strings.ToLower(strings.TrimSpace(params.Get("rated"))) {
	case "1", "true", "yes":
		filters.RatedOnly = true
	}
	return filters, limit, offset, nil
}

func parseOptionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *apiServer) handleMissing(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	titles, err := s.daemon.orch.GetMissingTitles(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	platform, _ := s.daemon.cfg.Platform(key)
	s.writeJSON(w, http.StatusOK, api.FromMissingTitles(platform.Key, titles))
}

func (s *apiServer) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromStats(stats))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, syncer.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrAlreadyRunning), errors.Is(err, syncer.ErrRunNotActive):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	resp := api.ErrorResponse{Error: err.Error()}
	if status >= http.StatusInternalServerError {
		resp.Hint = services.ErrorHint(err)
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, resp)
}
