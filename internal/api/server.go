// Package api is the HTTP admission layer: it starts order workflows and
// forwards signals and status queries to the engine. It holds no business
// logic of its own.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/trellislabs/orderflow/internal/metrics"
	"github.com/trellislabs/orderflow/internal/orderflow"
)

// Server is the admission HTTP server.
type Server struct {
	orchestrator Orchestrator
	httpMetrics  *metrics.HTTPMetrics
	router       chi.Router
}

// NewServer builds the admission server. registry may be nil to skip the
// /metrics endpoint.
func NewServer(orchestrator Orchestrator, registry *prometheus.Registry) *Server {
	s := &Server{orchestrator: orchestrator}
	if registry != nil {
		s.httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/signals/approve", s.handleApprove)
		r.Post("/signals/cancel", s.handleCancel)
		r.Post("/signals/address", s.handleAddress)
		r.Get("/status", s.handleStatus)
	})
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req StartOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentID == "" {
		writeError(w, http.StatusBadRequest, "payment_id is required")
		return
	}

	workflowID, runID, err := s.orchestrator.StartOrder(r.Context(), orderflow.StartInput{
		OrderID:   orderID,
		PaymentID: req.PaymentID,
		Address:   req.Address,
		Items:     req.Items,
	})
	if err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StartOrderResponse{WorkflowID: workflowID, RunID: runID})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := s.orchestrator.SignalOrder(r.Context(), orderID, orderflow.SignalApprove, nil); err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	// The body is optional; an absent or empty reason falls back to the
	// default downstream.
	var req CancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := req.Reason
	if reason == "" {
		reason = orderflow.DefaultCancelReason
	}

	if err := s.orchestrator.SignalOrder(r.Context(), orderID, orderflow.SignalCancelOrder, reason); err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Address) == 0 {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	if err := s.orchestrator.SignalOrder(r.Context(), orderID, orderflow.SignalUpdateAddress, req.Address); err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	status, err := s.orchestrator.OrderStatus(r.Context(), orderID)
	if err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeOrchestratorError maps engine errors onto HTTP statuses: unknown
// workflows become 404, anything else is a 500 for the caller to retry.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	log.WithFields(log.Fields{
		"path":  r.URL.Path,
		"error": err,
	}).Error("orchestrator request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

// requestLogger tags each request with an id, logs its outcome and feeds the
// HTTP metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		s.httpMetrics.Observe(route, strconv.Itoa(ww.Status()), start)
		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
