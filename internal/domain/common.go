package domain

// DecisionKind is the action a participant submits against the pool.
type DecisionKind string

const (
	DecisionBuy  DecisionKind = "buy"
	DecisionSell DecisionKind = "sell"
	DecisionStop DecisionKind = "stop"
)

// Valid reports whether the kind is one of buy, sell or stop.
func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionBuy, DecisionSell, DecisionStop:
		return true
	}
	return false
}

// PoolStatus is the externally visible lifecycle state of the session.
type PoolStatus string

const (
	PoolOpen    PoolStatus = "open"
	PoolClosing PoolStatus = "closing" // Settlement in flight
	PoolClosed  PoolStatus = "closed"
)

// SettlementReason indicates what triggered a settlement.
type SettlementReason string

const (
	SettlementManual SettlementReason = "MANUAL" // A participant submitted a stop decision
	SettlementExpiry SettlementReason = "EXPIRY" // The auto-expiry timer fired
)

// Participant is a roster member admitted to the current session.
type Participant struct {
	WalletID    string
	DisplayName string
}
