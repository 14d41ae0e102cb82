package domain

import "time"

// LiquidationResult is one wallet's outcome of a settlement batch.
type LiquidationResult struct {
	WalletID         string
	StartingCapital  float64
	FinalValue       float64
	TokensLiquidated float64
	LiquidationCash  float64
	ProfitLoss       float64
	ProfitLossPct    float64
	SettlementPrice  float64
	SettledAt        time.Time
}

// Settlement is the full output of one Open -> Closed transition.
type Settlement struct {
	SessionID       string
	SettlementPrice float64
	SettledAt       time.Time
	TriggeredBy     string // Wallet that triggered the stop (nominal for expiry)
	Reason          SettlementReason
	Results         []LiquidationResult // Roster insertion order
	Leaderboard     *Leaderboard
}
