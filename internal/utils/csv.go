// Package utils holds small export helpers shared by the command-line tools.
package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"tradingArena/internal/domain"
)

var leaderboardHeader = []string{
	"rank", "wallet_id", "display_name", "starting_capital", "final_value",
	"tokens_liquidated", "liquidation_cash", "profit_loss", "profit_loss_pct",
	"settlement_price", "settled_at",
}

// WriteLeaderboardToCSV writes the ranked entries of lb to filename.
func WriteLeaderboardToCSV(lb *domain.Leaderboard, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteLeaderboard(file, lb)
}

// WriteLeaderboard writes lb as CSV with a header row.
func WriteLeaderboard(w io.Writer, lb *domain.Leaderboard) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(leaderboardHeader); err != nil {
		return err
	}
	if lb != nil {
		for _, e := range lb.Entries {
			if err := writer.Write([]string{
				strconv.Itoa(e.Rank),
				e.WalletID,
				e.DisplayName,
				formatFloat(e.StartingCapital),
				formatFloat(e.FinalValue),
				formatFloat(e.TokensLiquidated),
				formatFloat(e.LiquidationCash),
				formatFloat(e.ProfitLoss),
				formatFloat(e.ProfitLossPct),
				formatFloat(e.SettlementPrice),
				e.SettledAt.Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
