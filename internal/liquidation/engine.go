// Package liquidation converts every open position to cash at one settlement
// price and publishes the ranked result.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradingArena/internal/domain"
	"tradingArena/internal/leaderboard"
	"tradingArena/internal/ports"
)

// Positions is the part of the ledger a settlement needs.
type Positions interface {
	SnapshotAll() []domain.Position
	ApplySettlement(results []domain.LiquidationResult)
}

// Pricer returns the settlement price.
type Pricer interface {
	Price(ctx context.Context) (float64, error)
}

// Liquidate computes one result per position at price, in the order given.
// It does not touch any state.
func Liquidate(positions []domain.Position, price float64, at time.Time) []domain.LiquidationResult {
	results := make([]domain.LiquidationResult, 0, len(positions))
	for _, p := range positions {
		cash := p.TokenBalance * price
		final := p.CashBalance + cash
		pl := final - p.StartingCapital
		var pct float64
		if p.StartingCapital != 0 {
			pct = pl / p.StartingCapital * 100
		}
		results = append(results, domain.LiquidationResult{
			WalletID:         p.WalletID,
			StartingCapital:  p.StartingCapital,
			FinalValue:       final,
			TokensLiquidated: p.TokenBalance,
			LiquidationCash:  cash,
			ProfitLoss:       pl,
			ProfitLossPct:    pct,
			SettlementPrice:  price,
			SettledAt:        at,
		})
	}
	return results
}

// Config holds the engine's dependencies.
type Config struct {
	Positions  Positions
	Pricer     Pricer
	Repository ports.SettlementRepository
	Board      *leaderboard.Board
	Logger     ports.Logger
	Now        func() time.Time
	NewID      func() string // Session id generator, defaults to uuid v4
}

// Engine is the Liquidation Engine.
type Engine struct {
	positions Positions
	pricer    Pricer
	repo      ports.SettlementRepository
	board     *leaderboard.Board
	logger    ports.Logger
	now       func() time.Time
	newID     func() string
}

// NewEngine validates cfg and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Positions == nil || cfg.Pricer == nil || cfg.Repository == nil || cfg.Board == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("liquidation engine requires positions, pricer, repository, board and logger")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Engine{
		positions: cfg.Positions,
		pricer:    cfg.Pricer,
		repo:      cfg.Repository,
		board:     cfg.Board,
		logger:    cfg.Logger,
		now:       now,
		newID:     newID,
	}, nil
}

// Run settles every position. The caller must hold the settlement claim so
// no trade can land while Run executes.
//
// Nothing is written unless the price is known, and memory only changes after
// the batch is committed to storage. On any error the ledger, the store and
// the published leaderboard are exactly as before.
func (e *Engine) Run(ctx context.Context, triggeredBy string, reason domain.SettlementReason, names map[string]string) (*domain.Settlement, error) {
	positions := e.positions.SnapshotAll()

	price, err := e.pricer.Price(ctx)
	if err != nil {
		if !errors.Is(err, ports.ErrPriceUnavailable) {
			err = fmt.Errorf("%w: %w", ports.ErrPriceUnavailable, err)
		}
		e.logger.Warn(ctx, "Settlement aborted, no price", map[string]interface{}{
			"reason": string(reason), "triggered_by": triggeredBy, "error": err.Error(),
		})
		return nil, fmt.Errorf("settlement price: %w", err)
	}

	at := e.now()
	results := Liquidate(positions, price, at)
	sessionID := e.newID()
	lb := leaderboard.Build(results, names, sessionID, price, at)

	settlement := &domain.Settlement{
		SessionID:       sessionID,
		SettlementPrice: price,
		SettledAt:       at,
		TriggeredBy:     triggeredBy,
		Reason:          reason,
		Results:         results,
		Leaderboard:     lb,
	}

	if err := e.repo.SaveSettlement(ctx, settlement); err != nil {
		e.logger.Error(ctx, err, "Failed to persist settlement", map[string]interface{}{"session_id": sessionID})
		return nil, fmt.Errorf("persist settlement: %w", err)
	}

	e.positions.ApplySettlement(results)
	e.board.Publish(lb)

	e.logger.Info(ctx, "Session settled", map[string]interface{}{
		"session_id":   sessionID,
		"reason":       string(reason),
		"triggered_by": triggeredBy,
		"price":        price,
		"participants": len(results),
	})
	return settlement, nil
}
