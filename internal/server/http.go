package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/repository"
)

// HTTPServer is the REST API for batches.
type HTTPServer struct {
	svc            *BatchService
	store          repository.RecordStore
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
	server         *http.Server
}

func NewHTTPServer(svc *BatchService, store repository.RecordStore, cfg common.ServerConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		svc:            svc,
		store:          store,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		requestTimeout: cfg.RequestTimeout,
		server:         &http.Server{Addr: cfg.HTTPAddr, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Routes builds the chi router.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batches", s.handleSubmitBatch)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Get("/batches/{id}/export", s.handleExportBatch)
		r.Get("/documents/{id}", s.handleGetRecord)
		r.Post("/documents/{id}/resubmit", s.handleResubmit)
	})
	return r
}

// Start serves until Stop is called.
func (s *HTTPServer) Start() error {
	s.server.Handler = s.Routes()
	s.logger.Info("http.listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := common.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"req_id", middleware.GetReqID(r.Context()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := repository.HealthCheck(r.Context(), s.store, 2*time.Second, s.logger); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Batch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Record(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Resubmit(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, rec)
}

func (s *HTTPServer) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "document id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *HTTPServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *HTTPServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a service error onto an HTTP status.
func (s *HTTPServer) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, common.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidInput):
		status, msg = http.StatusBadRequest, common.UserMessage(err)
	}
	if status == http.StatusInternalServerError {
		common.LoggerWithContext(r.Context(), s.logger).Error("http.failed", "path", r.URL.Path, "error", err)
	}
	s.respondError(w, status, msg)
}
