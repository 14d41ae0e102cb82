package domain

import "time"

// LeaderboardEntry is a liquidation result joined with a display name and ranked.
type LeaderboardEntry struct {
	LiquidationResult
	Rank        int // 1 = highest ProfitLossPct
	DisplayName string
	SessionID   string
}

// LeaderboardStats aggregates one settled batch.
type LeaderboardStats struct {
	Participants         int
	TotalProfitLoss      float64
	AverageProfitLoss    float64
	AverageProfitLossPct float64
	Winners              int // ProfitLoss >= 0
	Losers               int
	WinRate              float64
	Best                 *LeaderboardEntry
	Worst                *LeaderboardEntry
}

// Leaderboard is the ranked view of the last settled batch.
type Leaderboard struct {
	SessionID       string
	SettlementPrice float64
	SettledAt       time.Time
	Entries         []LeaderboardEntry
	Stats           LeaderboardStats
}
