// Command arena_report prints the last settled leaderboard from the arena
// database and optionally exports it as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"tradingArena/internal/adapters/logger"
	"tradingArena/internal/adapters/sqlite"
	"tradingArena/internal/domain"
	"tradingArena/internal/utils"
)

var (
	dbPath  = flag.String("db", "./data/arena.db", "path to the arena database")
	csvPath = flag.String("csv", "", "also write the leaderboard to this CSV file")
	verbose = flag.Bool("v", false, "verbose output, including the raw liquidation batch")
)

func main() {
	flag.Parse()

	level := logger.LevelWarn
	if *verbose {
		level = logger.LevelDebug
	}
	appLogger := logger.NewStdLogger(level)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lb, err := repo.FindLeaderboard(ctx)
	if err != nil {
		log.Fatalf("Error reading leaderboard: %v", err)
	}
	if lb == nil {
		fmt.Println("No settlement recorded yet.")
		return
	}

	printLeaderboard(os.Stdout, lb)

	if *verbose {
		results, err := repo.FindLiquidationResults(ctx)
		if err != nil {
			log.Fatalf("Error reading liquidation results: %v", err)
		}
		printLiquidations(os.Stdout, results)
	}

	positions, err := repo.FindAllPositions(ctx)
	if err != nil {
		log.Fatalf("Error reading positions: %v", err)
	}
	fmt.Printf("\n%d positions on file\n", len(positions))

	if *csvPath != "" {
		if err := utils.WriteLeaderboardToCSV(lb, *csvPath); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("Saved leaderboard to %s\n", *csvPath)
	}
}

func printLeaderboard(out io.Writer, lb *domain.Leaderboard) {
	fmt.Fprintf(out, "Session %s settled at %s, price %.6f\n\n", lb.SessionID, lb.SettledAt.Format(time.RFC3339), lb.SettlementPrice)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Rank\tWallet\tName\tStart\tFinal\tPnL\tPnL%\t")
	for _, e := range lb.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			e.Rank,
			e.WalletID,
			e.DisplayName,
			e.StartingCapital,
			e.FinalValue,
			e.ProfitLoss,
			e.ProfitLossPct,
		)
	}
	w.Flush()

	s := lb.Stats
	fmt.Fprintln(out, "\n## Summary")
	fmt.Fprintf(out, "Participants: %d\n", s.Participants)
	fmt.Fprintf(out, "Total PnL:    %.2f\n", s.TotalProfitLoss)
	fmt.Fprintf(out, "Average PnL:  %.2f (%.2f%%)\n", s.AverageProfitLoss, s.AverageProfitLossPct)
	fmt.Fprintf(out, "Win rate:     %.2f%% (%d winners, %d losers)\n", s.WinRate*100, s.Winners, s.Losers)
	if s.Best != nil && s.Worst != nil {
		fmt.Fprintf(out, "Best:         %s (%.2f%%)\n", s.Best.DisplayName, s.Best.ProfitLossPct)
		fmt.Fprintf(out, "Worst:        %s (%.2f%%)\n", s.Worst.DisplayName, s.Worst.ProfitLossPct)
	}
}

// printLiquidations prints the batch in roster order, as it was settled.
func printLiquidations(out io.Writer, results []*domain.LiquidationResult) {
	fmt.Fprintln(out, "\n## Liquidation batch (roster order)")
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Wallet\tCash\tTokens\tTokenCash\tFinal\tPrice\t")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2f\t%.6f\t%.2f\t%.2f\t%.6f\t\n",
			r.WalletID,
			r.FinalValue-r.LiquidationCash,
			r.TokensLiquidated,
			r.LiquidationCash,
			r.FinalValue,
			r.SettlementPrice,
		)
	}
	w.Flush()
}
