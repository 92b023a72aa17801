package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// OwnerHeader carries the calling user's identity. Authentication happens
// in front of this server.
const OwnerHeader = "X-User-ID"

// refreshTimeout bounds one manual batch
const refreshTimeout = 2 * time.Minute

// Refresher runs one reconciliation batch for an owner
type Refresher interface {
	Refresh(ctx context.Context, owner string) *types.BatchReport
}

// Server exposes the refresh trigger plus health and metrics over HTTP
type Server struct {
	refresher Refresher
	events    EventSource
	mux       *http.ServeMux
	http      *http.Server
	logger    zerolog.Logger

	// closing ends open event streams on Shutdown
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new API server
func NewServer(refresher Refresher) *Server {
	mux := http.NewServeMux()
	s := &Server{
		refresher: refresher,
		mux:       mux,
		logger:    log.WithComponent("api"),
		closing:   make(chan struct{}),
	}

	// Register endpoints
	mux.Handle("/nodes/refresh-all-status", instrument("/nodes/refresh-all-status", allowMethod(http.MethodPost, s.refreshHandler)))
	mux.Handle("/health", instrument("/health", allowMethod(http.MethodGet, healthHandler)))
	mux.Handle("/ready", instrument("/ready", allowMethod(http.MethodGet, readyHandler)))
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// WithEvents enables GET /events, streaming each owner's notifications
func (s *Server) WithEvents(source EventSource) *Server {
	s.events = source
	s.mux.Handle("/events", instrument("/events", allowMethod(http.MethodGet, s.eventsHandler)))
	return s
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: refreshTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metrics.RegisterComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", addr).Msg("API listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// RefreshResponse is the body of POST /nodes/refresh-all-status
type RefreshResponse struct {
	// Status is "ok", or "failed" when the batch aborted as a whole
	Status  string             `json:"status"`
	Updated int                `json:"updated"`
	Checked int                `json:"checked"`
	Errors  []types.BatchError `json:"errors"`
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	report := s.refresher.Refresh(ctx, owner)

	resp := RefreshResponse{
		Status:  "ok",
		Updated: report.UpdatedCount,
		Checked: len(report.Results),
		Errors:  report.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []types.BatchError{}
	}

	code := http.StatusOK
	if report.Failed() {
		resp.Status = "failed"
		code = http.StatusBadGateway
		s.logger.Warn().Err(report.Err).Str("owner", owner).Msg("Manual refresh failed")
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
