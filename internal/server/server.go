package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/tracker"
)

const maxListLimit = 1000

// Server is the read-only HTTP API over the snapshot archive.
type Server struct {
	cfg     Config
	tracker tracker.Tracker
	router  chi.Router
	logger  logging.Logger
}

// NewServer creates a Server reading from tr. The tracker is owned by the
// caller.
func NewServer(cfg Config, tr tracker.Tracker, logger logging.Logger) (*Server, error) {
	if tr == nil {
		return nil, errors.New("server: tracker is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}

	s := &Server{
		cfg:     cfg,
		tracker: tr,
		router:  chi.NewRouter(),
		logger:  logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/healthz", s.optionsHandler("GET"))
	r.Options("/versions", s.optionsHandler("GET"))
	r.Options("/versions/{id}", s.optionsHandler("GET"))
	r.Options("/versions/{id}/body", s.optionsHandler("GET"))
	r.Options("/diff", s.optionsHandler("GET"))

	r.Get("/healthz", s.handleHealth)

	r.Get("/versions", s.handleListVersions)
	r.Get("/versions/{id}", s.handleGetVersion)
	r.Get("/versions/{id}/body", s.handleGetVersionBody)

	r.Get("/diff", s.handleDiff)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q.Encode()})
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("archive API listening", logging.Field{Key: "addr", Value: srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("archive API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeTrackerError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, tracker.ErrVersionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Warn(op, logging.Field{Key: "error", Value: err.Error()})
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	url := r.URL.Query().Get("url")

	versions, err := s.tracker.ListVersions(r.Context(), url, limit)
	if err != nil {
		s.writeTrackerError(w, "listing versions", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionListResponse{Versions: versions, Count: len(versions)})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, err := s.tracker.GetVersion(r.Context(), id)
	if err != nil {
		s.writeTrackerError(w, "getting version", err)
		return
	}
	snap, err := s.tracker.Get(r.Context(), id)
	if err != nil {
		s.writeTrackerError(w, "getting snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionDetailResponse{Version: *v, Headers: snap.Headers})
}

func (s *Server) handleGetVersionBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.tracker.Get(r.Context(), id)
	if err != nil {
		s.writeTrackerError(w, "getting snapshot body", err)
		return
	}

	contentType := http.Header(snap.Headers).Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Body)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	head := r.URL.Query().Get("head")
	if head == "" {
		writeError(w, http.StatusBadRequest, "head is required")
		return
	}

	diff, err := s.tracker.Diff(r.Context(), base, head)
	if err != nil {
		s.writeTrackerError(w, "diffing versions", err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}
