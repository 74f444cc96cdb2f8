package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/logging"
	"avatarforge/internal/services"
	"avatarforge/internal/workflow"
)

const maxBodyBytes = 1 << 16

// JobService is the admission surface the HTTP handlers call.
type JobService interface {
	RequestJob(ctx context.Context, req workflow.Request) (workflow.Admission, error)
	Status(ctx context.Context) jobstate.JobStatus
	RequestCancel(ctx context.Context, confirm bool) (workflow.CancelResult, error)
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	jobs    JobService
	metrics http.Handler
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

type renderRequest struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type cancelRequest struct {
	ConfirmDelete bool `json:"confirm_delete"`
}

type confirmationResponse struct {
	ConfirmationRequired bool          `json:"confirmation_required"`
	Kind                 jobstate.Kind `json:"kind,omitempty"`
	Targets              []entity.Ref  `json:"targets,omitempty"`
	Error                string        `json:"error"`
}

type healthResponse struct {
	OK       bool            `json:"ok"`
	Status   jobstate.Status `json:"status"`
	Degraded bool            `json:"degraded,omitempty"`
}

func newAPIServer(bind, token string, jobs JobService, metrics http.Handler, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:    strings.TrimSpace(bind),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		jobs:    jobs,
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/render/jobs", srv.handleRenderJob)
	mux.HandleFunc("GET /api/render/status", srv.handleStatus)
	mux.HandleFunc("POST /api/render/cancel", srv.handleCancel)
	mux.HandleFunc("GET /api/health", srv.handleHealth)

	root := http.NewServeMux()
	root.Handle("/api/", requestIDMiddleware(authMiddleware(token, mux)))
	if metrics != nil {
		root.Handle("GET /metrics", metrics)
	}
	srv.handler = root

	srv.server = &http.Server{
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRenderJob(w http.ResponseWriter, r *http.Request) {
	var body renderRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := workflow.Request{Scope: entity.Scope(strings.TrimSpace(body.Kind)), ID: body.ID}
	if _, _, err := req.Job(); err != nil {
		s.writeError(w, http.StatusBadRequest, services.Details(err).Message)
		return
	}

	admission, err := s.jobs.RequestJob(r.Context(), req)
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, services.Details(err).Message)
	case err != nil:
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "render admission failed", "admission_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job lock and database connectivity"),
		)
		s.writeError(w, http.StatusServiceUnavailable, "admission failed")
	case !admission.Accepted:
		s.writeJSON(w, http.StatusConflict, admission)
	default:
		s.writeJSON(w, http.StatusAccepted, admission)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.Status(r.Context()))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.jobs.RequestCancel(r.Context(), body.ConfirmDelete)
	if errors.Is(err, workflow.ErrConfirmationRequired) {
		s.writeJSON(w, http.StatusConflict, confirmationResponse{
			ConfirmationRequired: true,
			Kind:                 result.Kind,
			Targets:              result.Targets,
			Error:                err.Error(),
		})
		return
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.jobs.Status(r.Context())
	code := http.StatusOK
	if status.Degraded {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{OK: !status.Degraded, Status: status.Status, Degraded: status.Degraded})
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
