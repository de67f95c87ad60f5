package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mstrand/trainfleet/internal/coordinator"
	"github.com/mstrand/trainfleet/internal/discovery"
	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/internal/storage"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// Server is the coordinator's HTTP API. Workers are identified by the host
// part of their remote address; handlers validate input before touching the
// coordinator so no request can leave registry or queue half-updated.
type Server struct {
	coord   *coordinator.Coordinator
	scanner *discovery.Scanner
	history storage.ResultStore
	logger  *utils.Logger
	server  *http.Server
}

// Config holds API server dependencies
type Config struct {
	Coordinator *coordinator.Coordinator
	Scanner     *discovery.Scanner  // optional, enables GET /discover
	History     storage.ResultStore // optional, enables GET /history
	Addr        string
}

// NewServer creates a new API server instance
func NewServer(config Config) *Server {
	s := &Server{
		coord:   config.Coordinator,
		scanner: config.Scanner,
		history: config.History,
		logger:  utils.NewLogger("api", utils.INFO),
	}

	mux := http.NewServeMux()

	// Worker-facing protocol
	mux.HandleFunc("/register", s.loggingMiddleware(s.handleRegister))
	mux.HandleFunc("/heartbeat", s.loggingMiddleware(s.handleHeartbeat))
	mux.HandleFunc("/job", s.loggingMiddleware(s.handleLeaseJob))
	mux.HandleFunc("/result", s.loggingMiddleware(s.handleReportResult))

	// Operator-facing endpoints
	mux.HandleFunc("/status", s.loggingMiddleware(s.handleStatus))
	mux.HandleFunc("/jobs", s.loggingMiddleware(s.handleCreateJob))
	mux.HandleFunc("/jobs/sample", s.loggingMiddleware(s.handleSampleJobs))
	mux.HandleFunc("/discover", s.loggingMiddleware(s.handleDiscover))
	mux.HandleFunc("/history", s.loggingMiddleware(s.handleHistory))

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("Starting API server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Middleware: Logging
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		next(w, r)

		s.logger.Debug("Completed %s %s in %v", r.Method, r.URL.Path, time.Since(start))
	}
}

// callerAddr extracts the worker key from the request: the remote host with
// the ephemeral port stripped, so one worker keeps one identity across calls.
func callerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Helper: JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response: %v", err)
	}
}

// Helper: Error response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// Handler: POST /register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Hostname == "" {
		s.errorResponse(w, http.StatusBadRequest, "Hostname is required")
		return
	}

	workerID := s.coord.Register(callerAddr(r), req.Hostname, req.Capabilities)
	s.jsonResponse(w, http.StatusOK, models.RegisterResponse{
		Status:   models.ReplyRegistered,
		WorkerID: workerID,
	})
}

// Handler: POST /heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.coord.Heartbeat(callerAddr(r), req.Status, req.Progress); err != nil {
		if errors.Is(err, models.ErrUnknownWorker) {
			s.jsonResponse(w, http.StatusNotFound, models.Ack{Status: models.ReplyUnknownWorker})
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to record heartbeat")
		return
	}

	s.jsonResponse(w, http.StatusOK, models.Ack{Status: models.ReplyOK})
}

// Handler: GET /job — lease the next pending job to the calling worker.
// 204 means the queue is empty, which is not an error.
func (s *Server) handleLeaseJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	job, err := s.coord.Lease(callerAddr(r))
	if err != nil {
		if errors.Is(err, models.ErrUnknownWorker) {
			s.jsonResponse(w, http.StatusNotFound, models.Ack{Status: models.ReplyUnknownWorker})
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to lease job")
		return
	}

	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// Handler: POST /result
func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.ReportResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.JobID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	s.coord.Report(callerAddr(r), req)
	s.jsonResponse(w, http.StatusOK, models.Ack{Status: models.ReplyRecorded})
}

// Handler: GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.jsonResponse(w, http.StatusOK, s.coord.Status())
}

// Handler: POST /jobs — operator enqueues a single job
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Config.Timesteps <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "Timesteps must be positive")
		return
	}

	job := s.coord.EnqueueConfig(req.Config)
	s.jsonResponse(w, http.StatusCreated, job)
}

// Handler: POST /jobs/sample — enqueue the built-in hyperparameter sweep
func (s *Server) handleSampleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	jobs := s.coord.SeedSampleJobs()
	s.jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"status": "created",
		"count":  len(jobs),
	})
}

// Handler: GET /discover — broadcast scan for workers on the subnet. The
// result is a suggestion list for the operator; it never mutates the
// registry, which is driven only by explicit registration.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.scanner == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Discovery is not enabled")
		return
	}

	found, err := s.scanner.Scan(r.Context())
	if err != nil {
		s.logger.Error("Discovery scan failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Discovery scan failed")
		return
	}

	type discovered struct {
		IP           string              `json:"ip"`
		Hostname     string              `json:"hostname"`
		Capabilities models.Capabilities `json:"capabilities"`
	}
	list := make([]discovered, 0, len(found))
	for _, a := range found {
		list = append(list, discovered{IP: a.Addr, Hostname: a.Hostname, Capabilities: a.Capabilities})
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"found": list})
}

// Handler: GET /history?limit=N — recent persisted results
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.history == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "History is not enabled")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	results, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read result history: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	if results == nil {
		results = []*models.JobResult{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"results": results})
}
