package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

const maxJobBody = 1 << 20

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// JobSubmitter enqueues an archive job for the merge pipeline.
type JobSubmitter interface {
	Submit(ctx context.Context, key, value []byte) error
}

// Server exposes health, readiness, metrics and job submission endpoints.
type Server struct {
	httpServer *http.Server
	submitter  JobSubmitter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// The service is ready only when every checker is. POST /jobs is registered
// when submitter is non-nil.
func NewServer(addr string, submitter JobSubmitter, logger *slog.Logger, checkers ...ReadinessChecker) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		submitter: submitter,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(allReady(checkers)))
	mux.Handle("GET /metrics", promhttp.Handler())
	if submitter != nil {
		mux.HandleFunc("POST /jobs", s.handleSubmit)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleSubmit validates a job the same way the pipeline will and then
// forwards the original body to the job topic.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJobBody))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, err := domain.ParseArchiveJob(domain.RawEvent{Value: body})
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if job.ID == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	if err := s.submitter.Submit(r.Context(), []byte(job.ID), body); err != nil {
		s.logger.Error("submit job failed", "job_id", job.ID, "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": "job could not be queued"})
		return
	}

	s.logger.Info("job queued", "job_id", job.ID, "mode", job.Mode, "archives", len(job.Archives))
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": job.ID})
}

type readinessFunc func(ctx context.Context) error

func (f readinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

func allReady(checkers []ReadinessChecker) ReadinessChecker {
	return readinessFunc(func(ctx context.Context) error {
		var errs []error
		for _, c := range checkers {
			if err := c.CheckReadiness(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
