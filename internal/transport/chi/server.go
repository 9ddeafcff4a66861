// Package chi exposes the query pipeline over HTTP: an SSE query endpoint,
// endpoint status and wake routes, liveness and metrics.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/usecase/status"
	"github.com/clinevid/clinevid/internal/version"
)

// Answerer runs one query against the pipeline, streaming into sink.
type Answerer interface {
	Answer(ctx context.Context, raw string, mode domain.Mode, sink domain.EventSink) error
}

// StatusChecker probes and wakes the model endpoints.
type StatusChecker interface {
	Check(ctx context.Context) status.Report
	Wake(ctx context.Context)
}

// Server holds the HTTP handlers.
type Server struct {
	answers Answerer
	status  StatusChecker
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(answers Answerer, status StatusChecker, logger *zap.Logger) *Server {
	return &Server{answers: answers, status: status, logger: logger}
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/wake", s.handleWake)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// handleQuery runs one query over SSE. Input validation fails with a plain
// JSON 400 before the stream starts; once streaming begins every outcome,
// including errors, travels as events.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "mode must be direct, rag or compare")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sink, err := newSSEWriter(w, r)
	if err != nil {
		s.logger.Error("SSE unsupported by response writer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sink.Close()

	if err := s.answers.Answer(r.Context(), req.Query, mode, sink); err != nil {
		// Already reported to the caller as an error event.
		s.logger.Debug("Query ended with error", zap.Error(err))
	}
}

// handleStatus reports per-endpoint liveness. Bounded by the probe timeout;
// never wakes or retries anything.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.status.Check(r.Context())

	type endpointStatus struct {
		Name        string `json:"name"`
		Status      string `json:"status"`
		Detail      string `json:"detail,omitempty"`
		LastChecked string `json:"last_checked,omitempty"`
	}

	resp := struct {
		Ready     bool             `json:"ready"`
		Endpoints []endpointStatus `json:"endpoints"`
	}{Ready: report.Ready(), Endpoints: []endpointStatus{}}

	for _, st := range report.Endpoints {
		es := endpointStatus{Name: st.Name, Status: string(st.Status), Detail: st.Detail}
		if !st.LastChecked.IsZero() {
			es.LastChecked = st.LastChecked.UTC().Format(time.RFC3339)
		}
		resp.Endpoints = append(resp.Endpoints, es)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWake fires wake-up requests at every endpoint and returns without
// waiting for any of them.
func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.status.Wake(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "waking"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
