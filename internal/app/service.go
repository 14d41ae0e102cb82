package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"tradingArena/config"
	"tradingArena/internal/domain"
	"tradingArena/internal/leaderboard"
	"tradingArena/internal/ledger"
	"tradingArena/internal/liquidation"
	"tradingArena/internal/ports"
	"tradingArena/internal/session"
)

const markConcurrency = 8 // Parallel price fetches in GetPositions

// Repository is the storage the service needs: positions plus the settled batch.
type Repository interface {
	ports.PositionRepository
	ports.SettlementRepository
}

// Pricer is the Pricing Gate.
type Pricer interface {
	Price(ctx context.Context) (float64, error)
}

// SessionService orchestrates one trading session: roster loads, decisions,
// settlement and the read-only views.
type SessionService struct {
	cfg     *config.Config
	logger  ports.Logger
	repo    Repository
	pricer  Pricer
	sampler FractionSampler

	ledger  *ledger.Ledger
	machine *session.Machine
	board   *leaderboard.Board
	engine  *liquidation.Engine
}

// NewSessionService creates a new application service instance. The session
// starts closed with an empty roster.
func NewSessionService(
	cfg *config.Config,
	logger ports.Logger,
	repo Repository,
	pricer Pricer,
	sampler FractionSampler,
) (*SessionService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || repo == nil || pricer == nil || sampler == nil {
		return nil, fmt.Errorf("missing required dependencies for SessionService")
	}

	// Validate config values needed by service
	if cfg.SessionDuration <= 0 {
		return nil, fmt.Errorf("configuration SessionDuration must be positive")
	}
	if cfg.ExpiryRetryDelay <= 0 {
		return nil, fmt.Errorf("configuration ExpiryRetryDelay must be positive")
	}

	led, err := ledger.New(ledger.Config{
		Policy: ledger.Policy{
			StartingCapital: cfg.StartingCapital,
			MinNotional:     cfg.MinNotional,
			MinTokens:       cfg.MinTokens,
		},
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	board := leaderboard.NewBoard()
	engine, err := liquidation.NewEngine(liquidation.Config{
		Positions:  led,
		Pricer:     pricer,
		Repository: repo,
		Board:      board,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create liquidation engine: %w", err)
	}

	return &SessionService{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		pricer:  pricer,
		sampler: sampler,
		ledger:  led,
		machine: session.NewMachine(logger),
		board:   board,
		engine:  engine,
	}, nil
}

// --- Lifecycle ---

func buildRoster(wallets, names []string) ([]domain.Participant, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: roster is empty", ports.ErrInvalidInput)
	}
	if names != nil && len(names) != len(wallets) {
		return nil, fmt.Errorf("%w: %d wallets but %d names", ports.ErrInvalidInput, len(wallets), len(names))
	}
	roster := make([]domain.Participant, 0, len(wallets))
	seen := make(map[string]struct{}, len(wallets))
	for i, w := range wallets {
		w = strings.TrimSpace(w)
		if w == "" {
			return nil, fmt.Errorf("%w: wallet %d is empty", ports.ErrInvalidInput, i)
		}
		if _, dup := seen[w]; dup {
			return nil, fmt.Errorf("%w: duplicate wallet %q", ports.ErrInvalidInput, w)
		}
		seen[w] = struct{}{}
		name := w
		if names != nil && strings.TrimSpace(names[i]) != "" {
			name = strings.TrimSpace(names[i])
		}
		roster = append(roster, domain.Participant{WalletID: w, DisplayName: name})
	}
	return roster, nil
}

// LoadRoster wipes the session, creates a fresh position for every wallet,
// opens trading and arms the expiry timer. names is optional; when given it
// must be parallel to wallets.
func (s *SessionService) LoadRoster(ctx context.Context, wallets, names []string) (domain.SessionSummary, error) {
	roster, err := buildRoster(wallets, names)
	if err != nil {
		return s.Summary(), err
	}

	st, err := s.machine.BeginReload()
	if err != nil {
		s.logger.Warn(ctx, "Roster load rejected", map[string]interface{}{"phase": st.Phase.String()})
		return s.Summary(), err
	}
	if err := s.rebuild(ctx, st, roster); err != nil {
		return s.Summary(), err
	}
	s.machine.Arm(st.Epoch, s.cfg.SessionDuration, s.onExpiry)

	s.logger.Info(ctx, "Roster loaded, session open", map[string]interface{}{
		"epoch":        st.Epoch,
		"participants": len(roster),
		"expiresIn":    s.cfg.SessionDuration.String(),
	})
	return s.Summary(), nil
}

// Reset wipes every position and the last settled batch and reopens with an
// empty roster. No timer is armed.
func (s *SessionService) Reset(ctx context.Context) (domain.SessionSummary, error) {
	st, err := s.machine.BeginReload()
	if err != nil {
		s.logger.Warn(ctx, "Reset rejected", map[string]interface{}{"phase": st.Phase.String()})
		return s.Summary(), err
	}
	if err := s.rebuild(ctx, st, nil); err != nil {
		return s.Summary(), err
	}
	s.logger.Info(ctx, "Session reset", map[string]interface{}{"epoch": st.Epoch})
	return s.Summary(), nil
}

// rebuild runs inside a claimed Loading phase. On a storage failure the
// session is left closed and the error is returned.
func (s *SessionService) rebuild(ctx context.Context, st session.State, roster []domain.Participant) error {
	if err := s.repo.ResetAll(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to wipe session storage")
		s.machine.FinishReload(st, s.machine.Roster(), session.PhaseClosed)
		return fmt.Errorf("reset storage: %w", err)
	}
	s.ledger.Forget()
	s.board.Publish(nil)

	for _, p := range roster {
		if _, err := s.ledger.CreateOrGet(ctx, p.WalletID); err != nil {
			s.logger.Error(ctx, err, "Failed to create position", map[string]interface{}{"wallet": p.WalletID})
			s.machine.FinishReload(st, roster, session.PhaseClosed)
			return err
		}
	}
	s.machine.FinishReload(st, roster, session.PhaseOpen)
	return nil
}

// Reopen resumes trading on a closed session. Positions and roster are kept;
// any pending timer is cancelled and not restarted.
func (s *SessionService) Reopen(ctx context.Context) (domain.SessionSummary, error) {
	st, err := s.machine.Reopen()
	if err != nil {
		s.logger.Warn(ctx, "Reopen rejected", map[string]interface{}{"phase": st.Phase.String()})
		return s.Summary(), err
	}
	s.logger.Info(ctx, "Session reopened", map[string]interface{}{"epoch": st.Epoch})
	return s.Summary(), nil
}

// Summary describes the current session.
func (s *SessionService) Summary() domain.SessionSummary {
	st := s.machine.State()
	return domain.SessionSummary{
		Epoch:           st.Epoch,
		Status:          st.Status(),
		Roster:          s.machine.Roster(),
		StartingCapital: s.cfg.StartingCapital,
		ExpiresAt:       s.machine.Deadline(),
	}
}

// Restore reloads the persisted positions and leaderboard after a restart.
// The roster is rebuilt from the restored positions and the session stays
// closed until it is reopened or a new roster is loaded.
func (s *SessionService) Restore(ctx context.Context) error {
	st, err := s.machine.BeginReload()
	if err != nil {
		return err
	}
	roster := s.machine.Roster()
	defer func() { s.machine.FinishReload(st, roster, session.PhaseClosed) }()

	if err := s.ledger.Restore(ctx); err != nil {
		return err
	}
	lb, err := s.repo.FindLeaderboard(ctx)
	if err != nil {
		return fmt.Errorf("restore leaderboard: %w", err)
	}
	s.board.Publish(lb)

	names := make(map[string]string)
	if lb != nil {
		for _, e := range lb.Entries {
			names[e.WalletID] = e.DisplayName
		}
	}
	positions := s.ledger.SnapshotAll()
	roster = make([]domain.Participant, 0, len(positions))
	for _, p := range positions {
		name := names[p.WalletID]
		if name == "" {
			name = p.WalletID
		}
		roster = append(roster, domain.Participant{WalletID: p.WalletID, DisplayName: name})
	}

	s.logger.Info(ctx, "Session state restored", map[string]interface{}{
		"positions":      len(positions),
		"hasLeaderboard": lb != nil,
	})
	return nil
}

// Shutdown cancels the expiry timer.
func (s *SessionService) Shutdown() {
	s.machine.Disarm()
}

// --- Decisions ---

// SubmitDecision applies one buy, sell or stop from a roster member.
// Business rejections come back as *ports.RejectionError.
func (s *SessionService) SubmitDecision(ctx context.Context, walletID string, kind domain.DecisionKind) (*domain.DecisionResult, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, fmt.Errorf("%w: wallet id is required", ports.ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown decision %q", ports.ErrInvalidInput, kind)
	}

	// Fast path: a closed pool rejects everything without touching the price feed.
	st := s.machine.State()
	if st.Phase != session.PhaseOpen {
		return nil, ports.ErrPoolClosed
	}
	if !s.machine.IsMember(walletID) {
		return nil, fmt.Errorf("%w: wallet %q is not on the roster", ports.ErrInvalidInput, walletID)
	}

	if kind == domain.DecisionStop {
		return s.stop(ctx, st.Epoch, walletID)
	}
	return s.trade(ctx, walletID, kind)
}

func (s *SessionService) trade(ctx context.Context, walletID string, kind domain.DecisionKind) (*domain.DecisionResult, error) {
	price, err := s.pricer.Price(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Trade aborted, no price", map[string]interface{}{"wallet": walletID, "decision": string(kind)})
		return nil, err
	}
	fraction := s.sampler.Sample()

	// The admission check is repeated under the gate: the session may have
	// closed while the price was fetched.
	release, err := s.machine.Admit(walletID)
	if err != nil {
		return nil, err
	}
	defer release()

	var pos domain.Position
	if kind == domain.DecisionBuy {
		pos, err = s.ledger.ApplyBuy(ctx, walletID, fraction, price)
	} else {
		pos, err = s.ledger.ApplySell(ctx, walletID, fraction, price)
	}
	if err != nil {
		if ports.IsRejection(err) {
			s.logger.Debug(ctx, "Decision rejected", map[string]interface{}{
				"wallet": walletID, "decision": string(kind), "reason": err.Error(),
			})
		} else {
			s.logger.Error(ctx, err, "Failed to apply decision", map[string]interface{}{"wallet": walletID, "decision": string(kind)})
		}
		return nil, err
	}

	s.logger.Info(ctx, "Decision applied", map[string]interface{}{
		"wallet":   walletID,
		"decision": string(kind),
		"price":    price,
		"fraction": fraction,
		"cash":     pos.CashBalance,
		"tokens":   pos.TokenBalance,
	})
	return &domain.DecisionResult{
		WalletID: walletID,
		Kind:     kind,
		Price:    price,
		Fraction: fraction,
		Position: pos,
	}, nil
}

func (s *SessionService) stop(ctx context.Context, epoch uint64, walletID string) (*domain.DecisionResult, error) {
	settlement, err := s.settle(ctx, epoch, walletID, domain.SettlementManual)
	if err != nil {
		return nil, err
	}
	pos, ok := s.ledger.Get(walletID)
	if !ok {
		// Settled without a ledger row; report the wallet with an empty position.
		s.logger.Warn(ctx, "Stopping wallet has no position", map[string]interface{}{
			"wallet": walletID, "sessionId": settlement.SessionID,
		})
		pos = domain.Position{WalletID: walletID}
	}
	return &domain.DecisionResult{
		WalletID:   walletID,
		Kind:       domain.DecisionStop,
		Price:      settlement.SettlementPrice,
		Position:   pos,
		Settlement: settlement,
	}, nil
}

// settle claims the Open -> Closed transition for epoch and runs the
// liquidation. Losing the claim means someone else settled: ErrPoolClosed.
// A failed liquidation rolls the session back to open.
func (s *SessionService) settle(ctx context.Context, epoch uint64, triggeredBy string, reason domain.SettlementReason) (*domain.Settlement, error) {
	claimed, ok := s.machine.BeginSettle(epoch)
	if !ok {
		return nil, ports.ErrPoolClosed
	}
	s.logger.Info(ctx, "Settlement started", map[string]interface{}{
		"epoch": epoch, "reason": string(reason), "triggeredBy": triggeredBy,
	})

	settlement, err := s.engine.Run(ctx, triggeredBy, reason, s.machine.DisplayNames())
	if err != nil {
		if s.machine.AbortSettle(claimed) {
			s.machine.Arm(epoch, s.cfg.ExpiryRetryDelay, s.onExpiry)
		}
		s.logger.Warn(ctx, "Settlement aborted, session stays open", map[string]interface{}{
			"epoch": epoch, "reason": string(reason), "error": err.Error(),
		})
		return nil, err
	}

	s.machine.CommitSettle(claimed)
	s.logger.Info(ctx, "Session closed", map[string]interface{}{"epoch": epoch, "sessionId": settlement.SessionID})
	return settlement, nil
}

// onExpiry runs on the timer goroutine.
func (s *SessionService) onExpiry(epoch uint64) {
	ctx := context.Background()
	roster := s.machine.Roster()
	if len(roster) == 0 {
		return
	}
	// Any member will do; liquidation covers the whole roster.
	trigger := roster[0].WalletID

	s.logger.Info(ctx, "Session expired", map[string]interface{}{"epoch": epoch})
	if _, err := s.settle(ctx, epoch, trigger, domain.SettlementExpiry); err != nil {
		if errors.Is(err, ports.ErrPoolClosed) {
			s.logger.Debug(ctx, "Expiry found session already settled", map[string]interface{}{"epoch": epoch})
			return
		}
		s.logger.Error(ctx, err, "Expiry settlement failed", map[string]interface{}{
			"epoch": epoch, "retryIn": s.cfg.ExpiryRetryDelay.String(),
		})
	}
}

// --- Views ---

// GetPositions returns every position marked at a fresh price. A wallet whose
// price fetch fails is returned with PriceAvailable false.
func (s *SessionService) GetPositions(ctx context.Context) ([]domain.PositionView, error) {
	positions := s.ledger.SnapshotAll()
	views := make([]domain.PositionView, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(markConcurrency)
	for i, p := range positions {
		i, p := i, p
		g.Go(func() error {
			view := domain.PositionView{Position: p}
			price, err := s.pricer.Price(gctx)
			if err != nil {
				s.logger.Debug(gctx, "Mark price unavailable", map[string]interface{}{"wallet": p.WalletID})
				views[i] = view
				return nil
			}
			view.PriceAvailable = true
			view.MarkPrice = price
			view.MarkValue = p.MarkValue(price)
			view.ProfitLoss = view.MarkValue - p.StartingCapital
			if p.StartingCapital != 0 {
				view.ProfitLossPct = view.ProfitLoss / p.StartingCapital * 100
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// GetPoolStatus returns open, closing or closed.
func (s *SessionService) GetPoolStatus() domain.PoolStatus {
	return s.machine.State().Status()
}

// GetLeaderboard returns the last settled batch, or an empty board.
func (s *SessionService) GetLeaderboard() *domain.Leaderboard {
	if lb := s.board.Current(); lb != nil {
		return lb
	}
	return &domain.Leaderboard{Entries: []domain.LeaderboardEntry{}}
}
