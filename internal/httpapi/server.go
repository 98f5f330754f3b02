// Package httpapi is a thin JSON binding over the gateway operations. Every
// operation is POST /api/<operation> with the params as the request body.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/neuroclaw/internal/flags"
	"github.com/user/neuroclaw/internal/gateway"
)

// Server exposes the gateway over HTTP.
type Server struct {
	svc *gateway.Service
	mux *http.ServeMux
}

// NewServer builds the route table for all gateway operations.
func NewServer(svc *gateway.Service) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(svc.Metrics().Registry(), promhttp.HandlerOpts{}))

	s.mux.HandleFunc("POST /api/context.ingest", handle(svc.Ingest))
	s.mux.HandleFunc("POST /api/context.snapshot", handle(svc.Snapshot))
	s.mux.HandleFunc("POST /api/context.prompt", handle(svc.Prompt))
	s.mux.HandleFunc("POST /api/suggestion.upsert", handle(svc.SuggestionUpsert))
	s.mux.HandleFunc("POST /api/suggestion.list", handle(svc.SuggestionList))
	s.mux.HandleFunc("POST /api/suggestion.action", handle(svc.SuggestionAction))
	s.mux.HandleFunc("POST /api/behavior.export", handle(svc.BehaviorExport))
	s.mux.HandleFunc("POST /api/behavior.delete", handle(svc.BehaviorDelete))
	s.mux.HandleFunc("POST /api/behavior.retention.run", handle(svc.BehaviorRetention))
	s.mux.HandleFunc("POST /api/predict.preview", handle(svc.PredictPreview))
	s.mux.HandleFunc("POST /api/flags.get", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, func() (flags.Snapshot, error) { return svc.FlagsGet(r.Context()) })
	})
	s.mux.HandleFunc("POST /api/flags.set", handle(svc.FlagsSet))
	s.mux.HandleFunc("POST /api/metrics.get", handle(svc.MetricsGet))
	s.mux.HandleFunc("POST /api/metrics.observe", handle(svc.MetricsObserve))
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handle decodes the params, runs the operation, and encodes the outcome.
// An empty body decodes as zero params.
func handle[P any, R any](op func(context.Context, P) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params P
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, gateway.Invalidf("invalid JSON body: %s", err.Error()))
			return
		}
		writeResult(w, func() (R, error) { return op(r.Context(), params) })
	}
}

func writeResult[R any](w http.ResponseWriter, run func() (R, error)) {
	result, err := run()
	if err != nil {
		writeError(w, gateway.AsError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, gatewayErr *gateway.Error) {
	status := http.StatusServiceUnavailable
	if gatewayErr.Code == gateway.CodeInvalidRequest {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]*gateway.Error{"error": gatewayErr})
}
