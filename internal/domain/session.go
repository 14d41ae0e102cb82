package domain

import "time"

// SessionSummary describes the session after a lifecycle call.
type SessionSummary struct {
	Epoch           uint64
	Status          PoolStatus
	Roster          []Participant
	StartingCapital float64
	ExpiresAt       time.Time // Zero when no expiry timer is armed
}
