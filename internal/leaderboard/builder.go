// Package leaderboard ranks settled batches and holds the current ranked view.
package leaderboard

import (
	"sort"
	"time"

	"tradingArena/internal/domain"
)

// Build ranks a liquidation batch by ProfitLossPct descending. Ties keep the
// batch order. names maps wallet id to display name; wallets without a name
// are shown by id. Build does not modify results.
func Build(results []domain.LiquidationResult, names map[string]string, sessionID string, settlementPrice float64, settledAt time.Time) *domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, len(results))
	for i, res := range results {
		name := names[res.WalletID]
		if name == "" {
			name = res.WalletID
		}
		entries[i] = domain.LeaderboardEntry{
			LiquidationResult: res,
			DisplayName:       name,
			SessionID:         sessionID,
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ProfitLossPct > entries[j].ProfitLossPct
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &domain.Leaderboard{
		SessionID:       sessionID,
		SettlementPrice: settlementPrice,
		SettledAt:       settledAt,
		Entries:         entries,
		Stats:           Stats(entries),
	}
}

// Stats aggregates ranked entries. Best and Worst are the first and last entry.
func Stats(entries []domain.LeaderboardEntry) domain.LeaderboardStats {
	stats := domain.LeaderboardStats{Participants: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	var totalPct float64
	for _, e := range entries {
		stats.TotalProfitLoss += e.ProfitLoss
		totalPct += e.ProfitLossPct
		if e.ProfitLoss >= 0 {
			stats.Winners++
		} else {
			stats.Losers++
		}
	}

	n := float64(len(entries))
	stats.AverageProfitLoss = stats.TotalProfitLoss / n
	stats.AverageProfitLossPct = totalPct / n
	stats.WinRate = float64(stats.Winners) / n

	best := entries[0]
	worst := entries[len(entries)-1]
	stats.Best = &best
	stats.Worst = &worst
	return stats
}
