package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/metrics"
)

// Server provides HTTP ops endpoints: healthz, livez and the
// Prometheus metrics handler.
type Server struct {
	checkers  []Checker
	version   string
	startTime time.Time
	mux       *http.ServeMux
	httpSrv   *http.Server
	log       zerolog.Logger
}

// NewServer creates the ops HTTP server over the given checkers.
func NewServer(version string, checkers ...Checker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checkers:  checkers,
		version:   version,
		startTime: time.Now(),
		mux:       mux,
		log:       log.WithComponent("health"),
	}

	// Register endpoints
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/livez", s.livezHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start serves the ops endpoints until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("ops endpoint listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// HealthResponse represents the healthz response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// LiveResponse represents the livez response
type LiveResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version,omitempty"`
}

// healthzHandler runs every registered checker and aggregates.
func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.checkers))
	healthy := true
	for _, c := range s.checkers {
		result := c.Check(ctx)
		if result.Healthy {
			checks[c.Name()] = "ok"
		} else {
			checks[c.Name()] = result.Message
			healthy = false
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Version:   s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// livezHandler reports process liveness only.
func (s *Server) livezHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := LiveResponse{
		Status:  "alive",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Version: s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
