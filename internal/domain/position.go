package domain

import "time"

// Position is a wallet's cash and token holdings within the active session.
type Position struct {
	WalletID        string    // Unique key
	StartingCapital float64   // Fixed at creation
	CashBalance     float64   // Never negative; buys are rejected instead
	TokenBalance    float64   // Never negative
	TradeCount      int       // Accepted buys and sells
	CreatedAt       time.Time // Audit timestamps
	UpdatedAt       time.Time
}

// MarkValue returns the mark-to-market value of the position at price.
func (p Position) MarkValue(price float64) float64 {
	return p.CashBalance + p.TokenBalance*price
}

// PositionView is a read-only position annotated with a live mark.
type PositionView struct {
	Position
	MarkPrice      float64 // 0 when PriceAvailable is false
	MarkValue      float64
	ProfitLoss     float64
	ProfitLossPct  float64
	PriceAvailable bool
}

// DecisionResult is the outcome of an accepted buy, sell or stop decision.
type DecisionResult struct {
	WalletID   string
	Kind       DecisionKind
	Price      float64     // Trade price for buy/sell, settlement price for stop
	Fraction   float64     // Sampled spend/sell fraction, 0 for stop
	Position   Position    // Post-decision snapshot of the caller's position
	Settlement *Settlement // Set only for stop
}
