// Package httpapi exposes the session service over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tradingArena/internal/domain"
	"tradingArena/internal/ports"
)

const maxBodyBytes = 1 << 20

// SessionService is the core contract served over HTTP.
type SessionService interface {
	LoadRoster(ctx context.Context, wallets, names []string) (domain.SessionSummary, error)
	SubmitDecision(ctx context.Context, walletID string, kind domain.DecisionKind) (*domain.DecisionResult, error)
	GetPositions(ctx context.Context) ([]domain.PositionView, error)
	GetPoolStatus() domain.PoolStatus
	GetLeaderboard() *domain.Leaderboard
	Reset(ctx context.Context) (domain.SessionSummary, error)
	Reopen(ctx context.Context) (domain.SessionSummary, error)
	Summary() domain.SessionSummary
}

// Server serves the arena API.
type Server struct {
	service SessionService
	logger  ports.Logger
	server  *http.Server
}

// NewServer creates a server for service.
func NewServer(service SessionService, logger ports.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/roster", s.handleRoster)
	mux.HandleFunc("/decide", s.handleDecide)
	mux.HandleFunc("/positions", s.handlePositions)
	mux.HandleFunc("/pool_status", s.handlePoolStatus)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/reopen", s.handleReopen)
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.withLogging(mux)
}

// Start starts the HTTP API server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info(context.Background(), "HTTP API listening", map[string]interface{}{"addr": addr})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP API server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn(context.Background(), "Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendServiceError maps a service error to its status code.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	resp := ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: err.Error(),
		Reason:  reasonFor(err),
	}
	var rej *ports.RejectionError
	if errors.As(err, &rej) {
		resp.Attempted = rej.Attempted
		resp.Available = rej.Available
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed", map[string]interface{}{"path": r.URL.Path})
	}
	s.sendJSON(w, code, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrPoolClosed), errors.Is(err, ports.ErrSettlementInProgress):
		return http.StatusConflict
	case ports.IsRejection(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ports.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ports.ErrPoolClosed):
		return "pool_closed"
	case errors.Is(err, ports.ErrSettlementInProgress):
		return "settlement_in_progress"
	case errors.Is(err, ports.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ports.ErrNoTokens):
		return "no_tokens"
	case errors.Is(err, ports.ErrBelowMinTokens):
		return "below_min_tokens"
	case errors.Is(err, ports.ErrProceedsTooSmall):
		return "proceeds_too_small"
	case errors.Is(err, ports.ErrPriceUnavailable):
		return "price_unavailable"
	default:
		return ""
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}
