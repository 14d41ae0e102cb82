package httpapi

import (
	"time"

	"tradingArena/internal/domain"
)

// LoadRosterRequest is the body of POST /roster. Names is optional and
// parallel to Wallets.
type LoadRosterRequest struct {
	Wallets []string `json:"wallets"`
	Names   []string `json:"names,omitempty"`
}

// DecisionRequest is the body of POST /decide as posted by trading agents.
type DecisionRequest struct {
	WalletAddress string `json:"wallet_address"`
	Decision      string `json:"decision"`
}

// ParticipantResponse is one roster member.
type ParticipantResponse struct {
	WalletID    string `json:"wallet_id"`
	DisplayName string `json:"display_name"`
}

// SessionResponse describes the session after a lifecycle call.
type SessionResponse struct {
	Epoch           uint64                `json:"epoch"`
	Status          string                `json:"status"`
	Roster          []ParticipantResponse `json:"roster"`
	StartingCapital float64               `json:"starting_capital"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
}

// PositionResponse is a position, optionally marked to market.
type PositionResponse struct {
	WalletID        string    `json:"wallet_id"`
	StartingCapital float64   `json:"starting_capital"`
	CashBalance     float64   `json:"cash_balance"`
	TokenBalance    float64   `json:"token_balance"`
	TradeCount      int       `json:"trade_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	PriceAvailable *bool    `json:"price_available,omitempty"`
	MarkPrice      *float64 `json:"mark_price,omitempty"`
	MarkValue      *float64 `json:"mark_value,omitempty"`
	ProfitLoss     *float64 `json:"profit_loss,omitempty"`
	ProfitLossPct  *float64 `json:"profit_loss_pct,omitempty"`
}

// ListPositionsResponse is the body of GET /positions.
type ListPositionsResponse struct {
	Positions []PositionResponse `json:"positions"`
	Count     int                `json:"count"`
}

// LiquidationResponse is one wallet's settlement outcome.
type LiquidationResponse struct {
	WalletID         string    `json:"wallet_id"`
	StartingCapital  float64   `json:"starting_capital"`
	FinalValue       float64   `json:"final_value"`
	TokensLiquidated float64   `json:"tokens_liquidated"`
	LiquidationCash  float64   `json:"liquidation_cash"`
	ProfitLoss       float64   `json:"profit_loss"`
	ProfitLossPct    float64   `json:"profit_loss_pct"`
	SettlementPrice  float64   `json:"settlement_price"`
	SettledAt        time.Time `json:"settled_at"`
}

// SettlementResponse is attached to a stop decision.
type SettlementResponse struct {
	SessionID       string                `json:"session_id"`
	SettlementPrice float64               `json:"settlement_price"`
	SettledAt       time.Time             `json:"settled_at"`
	TriggeredBy     string                `json:"triggered_by"`
	Reason          string                `json:"reason"`
	Results         []LiquidationResponse `json:"results"`
}

// DecisionResponse is the body returned by POST /decide.
type DecisionResponse struct {
	WalletAddress string              `json:"wallet_address"`
	Decision      string              `json:"decision"`
	Price         float64             `json:"price"`
	Fraction      float64             `json:"fraction,omitempty"`
	Position      PositionResponse    `json:"position"`
	Settlement    *SettlementResponse `json:"settlement,omitempty"`
}

// PoolStatusResponse is the body of GET /pool_status.
type PoolStatusResponse struct {
	Status string `json:"status"`
}

// LeaderboardEntryResponse is one ranked row.
type LeaderboardEntryResponse struct {
	Rank        int    `json:"rank"`
	DisplayName string `json:"display_name"`
	LiquidationResponse
}

// LeaderboardStatsResponse aggregates one settled batch.
type LeaderboardStatsResponse struct {
	Participants         int     `json:"participants"`
	TotalProfitLoss      float64 `json:"total_profit_loss"`
	AverageProfitLoss    float64 `json:"average_profit_loss"`
	AverageProfitLossPct float64 `json:"average_profit_loss_pct"`
	Winners              int     `json:"winners"`
	Losers               int     `json:"losers"`
	WinRate              float64 `json:"win_rate"`
	Best                 string  `json:"best,omitempty"`  // Wallet id
	Worst                string  `json:"worst,omitempty"` // Wallet id
}

// LeaderboardResponse is the body of GET /leaderboard.
type LeaderboardResponse struct {
	SessionID       string                     `json:"session_id"`
	SettlementPrice float64                    `json:"settlement_price,omitempty"`
	SettledAt       *time.Time                 `json:"settled_at,omitempty"`
	Entries         []LeaderboardEntryResponse `json:"entries"`
	Stats           LeaderboardStatsResponse   `json:"stats"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string  `json:"error"`
	Code      int     `json:"code"`
	Message   string  `json:"message,omitempty"`
	Reason    string  `json:"reason,omitempty"` // Machine-readable cause, e.g. insufficient_funds
	Attempted float64 `json:"attempted,omitempty"`
	Available float64 `json:"available,omitempty"`
}

// --- Mapping from domain ---

func toSession(s domain.SessionSummary) SessionResponse {
	resp := SessionResponse{
		Epoch:           s.Epoch,
		Status:          string(s.Status),
		Roster:          make([]ParticipantResponse, 0, len(s.Roster)),
		StartingCapital: s.StartingCapital,
	}
	for _, p := range s.Roster {
		resp.Roster = append(resp.Roster, ParticipantResponse{WalletID: p.WalletID, DisplayName: p.DisplayName})
	}
	if !s.ExpiresAt.IsZero() {
		t := s.ExpiresAt
		resp.ExpiresAt = &t
	}
	return resp
}

func toPosition(p domain.Position) PositionResponse {
	return PositionResponse{
		WalletID:        p.WalletID,
		StartingCapital: p.StartingCapital,
		CashBalance:     p.CashBalance,
		TokenBalance:    p.TokenBalance,
		TradeCount:      p.TradeCount,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPositionView(v domain.PositionView) PositionResponse {
	resp := toPosition(v.Position)
	available := v.PriceAvailable
	resp.PriceAvailable = &available
	if available {
		price, value, pl, pct := v.MarkPrice, v.MarkValue, v.ProfitLoss, v.ProfitLossPct
		resp.MarkPrice = &price
		resp.MarkValue = &value
		resp.ProfitLoss = &pl
		resp.ProfitLossPct = &pct
	}
	return resp
}

func toLiquidation(r domain.LiquidationResult) LiquidationResponse {
	return LiquidationResponse{
		WalletID:         r.WalletID,
		StartingCapital:  r.StartingCapital,
		FinalValue:       r.FinalValue,
		TokensLiquidated: r.TokensLiquidated,
		LiquidationCash:  r.LiquidationCash,
		ProfitLoss:       r.ProfitLoss,
		ProfitLossPct:    r.ProfitLossPct,
		SettlementPrice:  r.SettlementPrice,
		SettledAt:        r.SettledAt,
	}
}

func toDecision(d *domain.DecisionResult) DecisionResponse {
	resp := DecisionResponse{
		WalletAddress: d.WalletID,
		Decision:      string(d.Kind),
		Price:         d.Price,
		Fraction:      d.Fraction,
		Position:      toPosition(d.Position),
	}
	if s := d.Settlement; s != nil {
		settlement := &SettlementResponse{
			SessionID:       s.SessionID,
			SettlementPrice: s.SettlementPrice,
			SettledAt:       s.SettledAt,
			TriggeredBy:     s.TriggeredBy,
			Reason:          string(s.Reason),
			Results:         make([]LiquidationResponse, 0, len(s.Results)),
		}
		for _, r := range s.Results {
			settlement.Results = append(settlement.Results, toLiquidation(r))
		}
		resp.Settlement = settlement
	}
	return resp
}

func toLeaderboard(lb *domain.Leaderboard) LeaderboardResponse {
	resp := LeaderboardResponse{
		SessionID:       lb.SessionID,
		SettlementPrice: lb.SettlementPrice,
		Entries:         make([]LeaderboardEntryResponse, 0, len(lb.Entries)),
		Stats: LeaderboardStatsResponse{
			Participants:         lb.Stats.Participants,
			TotalProfitLoss:      lb.Stats.TotalProfitLoss,
			AverageProfitLoss:    lb.Stats.AverageProfitLoss,
			AverageProfitLossPct: lb.Stats.AverageProfitLossPct,
			Winners:              lb.Stats.Winners,
			Losers:               lb.Stats.Losers,
			WinRate:              lb.Stats.WinRate,
		},
	}
	if !lb.SettledAt.IsZero() {
		t := lb.SettledAt
		resp.SettledAt = &t
	}
	if lb.Stats.Best != nil {
		resp.Stats.Best = lb.Stats.Best.WalletID
	}
	if lb.Stats.Worst != nil {
		resp.Stats.Worst = lb.Stats.Worst.WalletID
	}
	for _, e := range lb.Entries {
		resp.Entries = append(resp.Entries, LeaderboardEntryResponse{
			Rank:                e.Rank,
			DisplayName:         e.DisplayName,
			LiquidationResponse: toLiquidation(e.LiquidationResult),
		})
	}
	return resp
}
