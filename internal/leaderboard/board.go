package leaderboard

import (
	"sync/atomic"

	"tradingArena/internal/domain"
)

// Board holds the current leaderboard. Publish swaps the whole view at once,
// so readers see either the old ranking or the new one, never a mix.
type Board struct {
	current atomic.Pointer[domain.Leaderboard]
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// Publish replaces the current view. A nil board clears it.
func (b *Board) Publish(lb *domain.Leaderboard) {
	b.current.Store(lb)
}

// Current returns the current view, or nil if nothing has been settled.
// The returned value must not be modified.
func (b *Board) Current() *domain.Leaderboard {
	return b.current.Load()
}
