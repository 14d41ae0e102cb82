// Package ledger owns the per-wallet positions of the current session.
//
// Positions live in an indexed table keyed by wallet id. Each row has its own
// mutex held only for one read-modify-write, so operations on different
// wallets run in parallel. Whole-table operations (snapshot, forget, restore,
// settlement) take the table lock exclusively and therefore observe a single
// consistent point in time.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradingArena/internal/domain"
	"tradingArena/internal/ports"
)

// Policy holds the session-wide constants the ledger enforces.
type Policy struct {
	StartingCapital float64 // Cash every new position starts with
	MinNotional     float64 // Smallest accepted spend or sale proceeds
	MinTokens       float64 // Smallest accepted token amount per sell
}

// Config holds the ledger's dependencies.
type Config struct {
	Policy     Policy
	Repository ports.PositionRepository
	Logger     ports.Logger
	Now        func() time.Time // Defaults to time.Now
}

type row struct {
	mu  sync.Mutex
	pos domain.Position
}

// Ledger is the Position Ledger.
type Ledger struct {
	policy Policy
	repo   ports.PositionRepository
	logger ports.Logger
	now    func() time.Time

	mu    sync.RWMutex // Shared for row operations, exclusive for table operations
	rows  map[string]*row
	order []string // Insertion order of wallet ids
}

// New creates an empty ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Repository == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("ledger requires a repository and a logger")
	}
	if cfg.Policy.StartingCapital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %g", cfg.Policy.StartingCapital)
	}
	if cfg.Policy.MinNotional < 0 || cfg.Policy.MinTokens < 0 {
		return nil, fmt.Errorf("minimums cannot be negative")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		policy: cfg.Policy,
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    now,
		rows:   make(map[string]*row),
	}, nil
}

// CreateOrGet returns the wallet's position, inserting a fresh one with the
// starting capital if it does not exist yet. An existing position is returned unmodified.
func (l *Ledger) CreateOrGet(ctx context.Context, walletID string) (domain.Position, error) {
	if walletID == "" {
		return domain.Position{}, fmt.Errorf("%w: empty wallet id", ports.ErrInvalidInput)
	}
	var pos domain.Position
	err := l.withRow(ctx, walletID, func(r *row) error {
		pos = r.pos
		return nil
	})
	return pos, err
}

// Get returns the wallet's position without creating it.
func (l *Ledger) Get(walletID string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rows[walletID]
	if !ok {
		return domain.Position{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos, true
}

// withRow runs fn under the wallet's row lock. An existing row is used under
// the shared table lock. A missing row is inserted and fn runs under the
// exclusive table lock, so a concurrent Forget or Restore can never orphan it.
func (l *Ledger) withRow(ctx context.Context, walletID string, fn func(r *row) error) error {
	l.mu.RLock()
	if r, ok := l.rows[walletID]; ok {
		defer l.mu.RUnlock()
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(r)
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[walletID]
	if !ok {
		var err error
		if r, err = l.insertLocked(ctx, walletID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}

// insertLocked must be called with l.mu held exclusively.
func (l *Ledger) insertLocked(ctx context.Context, walletID string) (*row, error) {
	ts := l.now()
	pos := domain.Position{
		WalletID:        walletID,
		StartingCapital: l.policy.StartingCapital,
		CashBalance:     l.policy.StartingCapital,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := l.repo.SavePosition(ctx, &pos); err != nil {
		return nil, fmt.Errorf("create position for %s: %w: %w", walletID, ports.ErrUpdateFailed, err)
	}
	r := &row{pos: pos}
	l.rows[walletID] = r
	l.order = append(l.order, walletID)
	l.logger.Debug(ctx, "Position created", map[string]interface{}{"wallet": walletID, "startingCapital": pos.StartingCapital})
	return r, nil
}

// mutate runs fn on a copy of the wallet's position under the row lock and
// persists the result. The in-memory row only changes once the write succeeded.
func (l *Ledger) mutate(ctx context.Context, walletID string, fn func(p *domain.Position) error) (domain.Position, error) {
	if walletID == "" {
		return domain.Position{}, fmt.Errorf("%w: empty wallet id", ports.ErrInvalidInput)
	}
	var out domain.Position
	err := l.withRow(ctx, walletID, func(r *row) error {
		out = r.pos
		next := r.pos
		if err := fn(&next); err != nil {
			return err
		}
		next.TradeCount++
		next.UpdatedAt = l.now()
		if err := l.repo.SavePosition(ctx, &next); err != nil {
			return fmt.Errorf("save position for %s: %w: %w", walletID, ports.ErrUpdateFailed, err)
		}
		r.pos = next
		out = next
		return nil
	})
	return out, err
}

func validateTrade(fraction, price float64) error {
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("%w: fraction %g outside (0, 1]", ports.ErrInvalidInput, fraction)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price %g must be positive", ports.ErrInvalidInput, price)
	}
	return nil
}

// ApplyBuy spends fraction of the wallet's cash at price.
func (l *Ledger) ApplyBuy(ctx context.Context, walletID string, fraction, price float64) (domain.Position, error) {
	if err := validateTrade(fraction, price); err != nil {
		return domain.Position{}, err
	}
	return l.mutate(ctx, walletID, func(p *domain.Position) error {
		spend := p.CashBalance * fraction
		if p.CashBalance <= 0 || spend < l.policy.MinNotional {
			return &ports.RejectionError{Err: ports.ErrInsufficientFunds, WalletID: walletID, Attempted: spend, Available: p.CashBalance}
		}
		p.CashBalance -= spend
		if p.CashBalance < 0 {
			p.CashBalance = 0
		}
		p.TokenBalance += spend / price
		return nil
	})
}

// ApplySell sells fraction of the wallet's tokens at price.
func (l *Ledger) ApplySell(ctx context.Context, walletID string, fraction, price float64) (domain.Position, error) {
	if err := validateTrade(fraction, price); err != nil {
		return domain.Position{}, err
	}
	return l.mutate(ctx, walletID, func(p *domain.Position) error {
		if p.TokenBalance <= 0 {
			return &ports.RejectionError{Err: ports.ErrNoTokens, WalletID: walletID, Available: p.TokenBalance}
		}
		amount := p.TokenBalance * fraction
		if amount < l.policy.MinTokens {
			return &ports.RejectionError{Err: ports.ErrBelowMinTokens, WalletID: walletID, Attempted: amount, Available: p.TokenBalance}
		}
		proceeds := amount * price
		if proceeds < l.policy.MinNotional {
			return &ports.RejectionError{Err: ports.ErrProceedsTooSmall, WalletID: walletID, Attempted: proceeds, Available: p.TokenBalance}
		}
		p.TokenBalance -= amount
		if p.TokenBalance < 0 {
			p.TokenBalance = 0
		}
		p.CashBalance += proceeds
		return nil
	})
}

// SnapshotAll returns every position in insertion order, taken under the
// exclusive table lock so no position is observed half-updated.
func (l *Ledger) SnapshotAll() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.rows[id].pos)
	}
	return out
}

// Forget drops all in-memory rows without touching storage. Used after the
// storage layer has already been wiped in a wider transaction.
func (l *Ledger) Forget() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = make(map[string]*row)
	l.order = nil
}

// ApplySettlement sets every settled wallet to cash = final value and zero
// tokens. The caller persists the same state beforehand; this only updates memory.
func (l *Ledger) ApplySettlement(results []domain.LiquidationResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, res := range results {
		r, ok := l.rows[res.WalletID]
		if !ok {
			continue
		}
		r.pos.CashBalance = res.FinalValue
		r.pos.TokenBalance = 0
		r.pos.UpdatedAt = res.SettledAt
	}
}

// Restore replaces the in-memory table with what the repository holds.
func (l *Ledger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	positions, err := l.repo.FindAllPositions(ctx)
	if err != nil {
		return fmt.Errorf("restore positions: %w: %w", ports.ErrQueryFailed, err)
	}
	l.rows = make(map[string]*row, len(positions))
	l.order = make([]string, 0, len(positions))
	for _, p := range positions {
		l.rows[p.WalletID] = &row{pos: *p}
		l.order = append(l.order, p.WalletID)
	}
	l.logger.Info(ctx, "Positions restored", map[string]interface{}{"count": len(positions)})
	return nil
}
