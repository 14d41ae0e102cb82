package ports

import (
	"context"

	"tradingArena/internal/domain"
)

// PositionRepository persists the positions of the current session.
type PositionRepository interface {
	// SavePosition inserts or replaces the position keyed by its wallet id.
	SavePosition(ctx context.Context, pos *domain.Position) error
	// FindAllPositions returns every position in insertion order.
	FindAllPositions(ctx context.Context) ([]*domain.Position, error)
}

// SettlementRepository persists the last settled batch.
type SettlementRepository interface {
	// SaveSettlement atomically writes post-settlement positions and replaces
	// the liquidation_results and leaderboard tables with the new batch.
	SaveSettlement(ctx context.Context, s *domain.Settlement) error
	// FindLeaderboard returns the last ranked batch, or nil, nil if none exists.
	FindLeaderboard(ctx context.Context) (*domain.Leaderboard, error)
	// ResetAll wipes positions, liquidation results and leaderboard in one transaction.
	ResetAll(ctx context.Context) error
}
