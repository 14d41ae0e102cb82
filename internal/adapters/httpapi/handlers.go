package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tradingArena/internal/domain"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// handleRoster handles POST /roster
func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req LoadRosterRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.service.LoadRoster(r.Context(), req.Wallets, req.Names)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toSession(summary))
}

// handleDecide handles POST /decide
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req DecisionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.WalletAddress == "" {
		s.sendError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}
	kind := domain.DecisionKind(strings.ToLower(strings.TrimSpace(req.Decision)))
	res, err := s.service.SubmitDecision(r.Context(), req.WalletAddress, kind)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toDecision(res))
}

// handlePositions handles GET /positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	views, err := s.service.GetPositions(r.Context())
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	resp := ListPositionsResponse{Positions: make([]PositionResponse, 0, len(views)), Count: len(views)}
	for _, v := range views {
		resp.Positions = append(resp.Positions, toPositionView(v))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handlePoolStatus handles GET /pool_status
func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, http.StatusOK, PoolStatusResponse{Status: string(s.service.GetPoolStatus())})
}

// handleLeaderboard handles GET /leaderboard
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, http.StatusOK, toLeaderboard(s.service.GetLeaderboard()))
}

// handleReset handles POST /reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.service.Reset(r.Context())
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toSession(summary))
}

// handleReopen handles POST /reopen
func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.service.Reopen(r.Context())
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toSession(summary))
}

// handleSession handles GET /session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, http.StatusOK, toSession(s.service.Summary()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
