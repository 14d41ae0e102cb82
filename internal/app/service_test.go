package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingArena/config"
	"tradingArena/internal/domain"
	"tradingArena/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockStore is an in-memory Repository.
type mockStore struct {
	mu          sync.Mutex
	positions   map[string]domain.Position
	order       []string
	leaderboard *domain.Leaderboard
	settlements int

	saveErr   error
	settleErr error
	resetErr  error
}

func newMockStore() *mockStore {
	return &mockStore{positions: make(map[string]domain.Position)}
}

func (m *mockStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.positions[pos.WalletID]; !ok {
		m.order = append(m.order, pos.WalletID)
	}
	m.positions[pos.WalletID] = *pos
	return nil
}

func (m *mockStore) FindAllPositions(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.order))
	for _, id := range m.order {
		p := m.positions[id]
		out = append(out, &p)
	}
	return out, nil
}

func (m *mockStore) SaveSettlement(ctx context.Context, s *domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return m.settleErr
	}
	for i := range s.Results {
		res := s.Results[i]
		p := m.positions[res.WalletID]
		p.CashBalance = res.FinalValue
		p.TokenBalance = 0
		m.positions[res.WalletID] = p
	}
	m.leaderboard = s.Leaderboard
	m.settlements++
	return nil
}

func (m *mockStore) FindLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaderboard, nil
}

func (m *mockStore) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.positions = make(map[string]domain.Position)
	m.order = nil
	m.leaderboard = nil
	return nil
}

func (m *mockStore) settlementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settlements
}

// stubPricer returns a settable price. The first failFirst calls fail; when
// block is set every call waits on it.
type stubPricer struct {
	mu        sync.Mutex
	price     float64
	err       error
	failFirst int
	calls     int
	block     chan struct{}
	entered   chan struct{}
}

func (p *stubPricer) Price(ctx context.Context) (float64, error) {
	p.mu.Lock()
	p.calls++
	fail := p.calls <= p.failFirst || p.err != nil
	price, block, entered := p.price, p.block, p.entered
	p.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if fail {
		return 0, fmt.Errorf("%w: stub feed down", ports.ErrPriceUnavailable)
	}
	return price, nil
}

func (p *stubPricer) set(price float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	p.err = err
}

func testConfig() *config.Config {
	return &config.Config{
		StartingCapital:  1000,
		MinNotional:      0.01,
		MinTokens:        0.000001,
		FractionMin:      0.1,
		FractionMax:      0.5,
		SessionDuration:  time.Hour,
		ExpiryRetryDelay: 20 * time.Millisecond,
	}
}

type fixture struct {
	svc    *SessionService
	store  *mockStore
	pricer *stubPricer
	logger *mockLogger
}

func newFixture(t *testing.T, cfg *config.Config, fraction float64) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMockStore(),
		pricer: &stubPricer{price: 10},
		logger: &mockLogger{},
	}
	svc, err := NewSessionService(cfg, f.logger, f.store, f.pricer, FixedSampler(fraction))
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	f.svc = svc
	return f
}

func TestNewSessionService_Validation(t *testing.T) {
	store := newMockStore()
	pricer := &stubPricer{price: 10}

	_, err := NewSessionService(nil, &mockLogger{}, store, pricer, FixedSampler(0.2))
	assert.Error(t, err)

	cfg := testConfig()
	cfg.SessionDuration = 0
	_, err = NewSessionService(cfg, &mockLogger{}, store, pricer, FixedSampler(0.2))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.StartingCapital = 0
	_, err = NewSessionService(cfg, &mockLogger{}, store, pricer, FixedSampler(0.2))
	assert.Error(t, err)
}

func TestSessionService_StartsClosed(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	assert.Equal(t, domain.PoolClosed, f.svc.GetPoolStatus())

	_, err := f.svc.SubmitDecision(context.Background(), "A", domain.DecisionBuy)
	assert.ErrorIs(t, err, ports.ErrPoolClosed)
	assert.Empty(t, f.svc.GetLeaderboard().Entries)
}

// Buy at 10 with fraction 0.2, then stop at 12.
func TestSessionService_BuyThenStopScenario(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()

	summary, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, []string{"alpha", ""})
	require.NoError(t, err)
	assert.Equal(t, domain.PoolOpen, summary.Status)
	assert.Equal(t, []domain.Participant{{WalletID: "A", DisplayName: "alpha"}, {WalletID: "B", DisplayName: "B"}}, summary.Roster)
	assert.False(t, summary.ExpiresAt.IsZero())

	res, err := f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Price)
	assert.Equal(t, 0.2, res.Fraction)
	assert.InDelta(t, 800.0, res.Position.CashBalance, 1e-9)
	assert.InDelta(t, 20.0, res.Position.TokenBalance, 1e-9)
	assert.Equal(t, 1, res.Position.TradeCount)

	f.pricer.set(12, nil)
	stop, err := f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	require.NoError(t, err)
	require.NotNil(t, stop.Settlement)
	assert.Equal(t, 12.0, stop.Price)
	assert.Equal(t, domain.SettlementManual, stop.Settlement.Reason)
	assert.Equal(t, "A", stop.Settlement.TriggeredBy)

	results := stop.Settlement.Results
	require.Len(t, results, 2)
	a, b := results[0], results[1]
	assert.Equal(t, "A", a.WalletID)
	assert.InDelta(t, 240.0, a.LiquidationCash, 1e-9)
	assert.InDelta(t, 1040.0, a.FinalValue, 1e-9)
	assert.InDelta(t, 40.0, a.ProfitLoss, 1e-9)
	assert.InDelta(t, 4.0, a.ProfitLossPct, 1e-9)
	assert.InDelta(t, 1000.0, b.FinalValue, 1e-9)
	assert.Zero(t, b.ProfitLoss)

	// Post-settlement positions: cash = final value, no tokens.
	assert.InDelta(t, 1040.0, stop.Position.CashBalance, 1e-9)
	assert.Zero(t, stop.Position.TokenBalance)

	lb := f.svc.GetLeaderboard()
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "A", lb.Entries[0].WalletID)
	assert.Equal(t, "alpha", lb.Entries[0].DisplayName)
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, stop.Settlement.SessionID, lb.SessionID)

	assert.Equal(t, domain.PoolClosed, f.svc.GetPoolStatus())
	assert.True(t, f.svc.Summary().ExpiresAt.IsZero(), "stop cancels the timer")
	assert.Equal(t, 1, f.store.settlementCount())
}

func TestSessionService_NoTradingAfterStop(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "B", domain.DecisionStop)
	require.NoError(t, err)

	before, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)

	for _, kind := range []domain.DecisionKind{domain.DecisionBuy, domain.DecisionSell, domain.DecisionStop} {
		_, err := f.svc.SubmitDecision(ctx, "A", kind)
		assert.ErrorIs(t, err, ports.ErrPoolClosed, string(kind))
	}

	after, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.store.settlementCount())
}

func TestSessionService_InsufficientFunds(t *testing.T) {
	f := newFixture(t, testConfig(), 1.0)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"C"}, nil)
	require.NoError(t, err)

	drained, err := f.svc.SubmitDecision(ctx, "C", domain.DecisionBuy)
	require.NoError(t, err)
	require.Zero(t, drained.Position.CashBalance)

	_, err = f.svc.SubmitDecision(ctx, "C", domain.DecisionBuy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.True(t, ports.IsRejection(err))

	views, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, drained.Position, views[0].Position)
}

func TestSessionService_LoadRosterValidation(t *testing.T) {
	tests := []struct {
		name    string
		wallets []string
		names   []string
	}{
		{"empty roster", []string{}, nil},
		{"nil roster", nil, nil},
		{"empty wallet", []string{"A", " "}, nil},
		{"duplicate wallet", []string{"A", "B", "A"}, nil},
		{"mismatched names", []string{"A", "B"}, []string{"alpha"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), 0.2)
			summary, err := f.svc.LoadRoster(context.Background(), tt.wallets, tt.names)
			assert.ErrorIs(t, err, ports.ErrInvalidInput)
			assert.Equal(t, domain.PoolClosed, summary.Status, "no session created")
			assert.Empty(t, summary.Roster)
		})
	}
}

func TestSessionService_DecisionValidation(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitDecision(ctx, "", domain.DecisionBuy)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionKind("hold"))
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = f.svc.SubmitDecision(ctx, "Z", domain.DecisionBuy)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
	_, err = f.svc.SubmitDecision(ctx, "Z", domain.DecisionStop)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)

	assert.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionSell)
	assert.ErrorIs(t, err, ports.ErrNoTokens)
}

func TestSessionService_ResetIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	require.NoError(t, err)

	first, err := f.svc.Reset(ctx)
	require.NoError(t, err)
	second, err := f.svc.Reset(ctx)
	require.NoError(t, err)

	for _, s := range []domain.SessionSummary{first, second} {
		assert.Equal(t, domain.PoolOpen, s.Status)
		assert.Empty(t, s.Roster)
		assert.True(t, s.ExpiresAt.IsZero(), "reset does not arm a timer")
	}
	views, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Empty(t, f.svc.GetLeaderboard().Entries)
	assert.Nil(t, f.store.leaderboard)
}

func TestSessionService_ReopenKeepsPositions(t *testing.T) {
	f := newFixture(t, testConfig(), 0.5)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	require.NoError(t, err)

	summary, err := f.svc.Reopen(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolOpen, summary.Status)
	assert.True(t, summary.ExpiresAt.IsZero(), "reopen does not restart the timer")

	views, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].TradeCount, "reopen must not wipe positions")
	assert.InDelta(t, 1000.0, views[0].CashBalance, 1e-9, "settled at the buy price")

	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	assert.NoError(t, err)
}

func TestSessionService_StopWithoutPriceRollsBack(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)

	f.pricer.set(0, errors.New("down"))
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	assert.ErrorIs(t, err, ports.ErrPriceUnavailable)

	assert.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())
	assert.Zero(t, f.store.settlementCount())
	assert.Empty(t, f.svc.GetLeaderboard().Entries)
	assert.False(t, f.svc.Summary().ExpiresAt.IsZero(), "timer still pending")

	f.pricer.set(10, nil)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.settlementCount())
}

func TestSessionService_StorageFailureOnSettlement(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.settleErr = fmt.Errorf("%w: disk full", ports.ErrUpdateFailed)
	f.store.mu.Unlock()

	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)
	assert.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())
}

func TestSessionService_StorageFailureOnTrade(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.saveErr = errors.New("locked")
	f.store.mu.Unlock()

	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)
	assert.False(t, ports.IsRejection(err))
}

func TestSessionService_LoadRosterStorageFailureLeavesClosed(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	f.store.resetErr = errors.New("read-only")

	summary, err := f.svc.LoadRoster(context.Background(), []string{"A"}, nil)
	assert.Error(t, err)
	assert.Equal(t, domain.PoolClosed, summary.Status)
}

func TestSessionService_ExpirySettles(t *testing.T) {
	cfg := testConfig()
	cfg.SessionDuration = 30 * time.Millisecond
	f := newFixture(t, cfg, 0.2)

	_, err := f.svc.LoadRoster(context.Background(), []string{"A", "B"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.svc.GetPoolStatus() == domain.PoolClosed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.store.settlementCount())
	lb := f.svc.GetLeaderboard()
	assert.Len(t, lb.Entries, 2)
}

func TestSessionService_ExpiryRetriesAfterPriceFailure(t *testing.T) {
	cfg := testConfig()
	cfg.SessionDuration = 20 * time.Millisecond
	f := newFixture(t, cfg, 0.2)
	f.pricer.mu.Lock()
	f.pricer.failFirst = 2
	f.pricer.mu.Unlock()

	_, err := f.svc.LoadRoster(context.Background(), []string{"A"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.svc.GetPoolStatus() == domain.PoolClosed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.store.settlementCount())
	f.logger.mu.Lock()
	assert.Contains(t, f.logger.errorMsgs, "Expiry settlement failed")
	f.logger.mu.Unlock()
}

func TestSessionService_ReloadCancelsTimer(t *testing.T) {
	cfg := testConfig()
	cfg.SessionDuration = 40 * time.Millisecond
	f := newFixture(t, cfg, 0.2)
	ctx := context.Background()

	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)
	_, err = f.svc.Reset(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())
	assert.Zero(t, f.store.settlementCount())
}

func TestSessionService_ReopenCancelsPendingTimer(t *testing.T) {
	cfg := testConfig()
	cfg.SessionDuration = 50 * time.Millisecond
	f := newFixture(t, cfg, 0.2)
	ctx := context.Background()

	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	summary, err := f.svc.Reopen(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolOpen, summary.Status)
	assert.True(t, summary.ExpiresAt.IsZero())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())
	assert.Zero(t, f.store.settlementCount())
}

// After a failed expiry re-armed the retry countdown, a roster reload must
// own the timer: the new session expires on its own duration.
func TestSessionService_ReloadAfterExpiryRetryKeepsNewTimer(t *testing.T) {
	cfg := testConfig()
	cfg.SessionDuration = 20 * time.Millisecond
	cfg.ExpiryRetryDelay = time.Hour
	f := newFixture(t, cfg, 0.2)
	ctx := context.Background()

	f.pricer.set(0, errors.New("down"))
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		f.logger.mu.Lock()
		defer f.logger.mu.Unlock()
		for _, msg := range f.logger.errorMsgs {
			if msg == "Expiry settlement failed" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, domain.PoolOpen, f.svc.GetPoolStatus())

	f.pricer.set(10, nil)
	summary, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	assert.True(t, summary.ExpiresAt.Before(time.Now().Add(time.Minute)), "retry countdown must not survive the reload")

	require.Eventually(t, func() bool { return f.svc.GetPoolStatus() == domain.PoolClosed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.store.settlementCount())
	assert.Len(t, f.svc.GetLeaderboard().Entries, 2)
}

func TestSessionService_StopReportsMissingPosition(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)
	f.svc.ledger.Forget()

	res, err := f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Position.WalletID)
	assert.Empty(t, res.Settlement.Results)
	f.logger.mu.Lock()
	assert.Contains(t, f.logger.warnMsgs, "Stopping wallet has no position")
	f.logger.mu.Unlock()
}

// A manual stop racing the expiry timer settles exactly once.
func TestSessionService_ExactlyOnceSettlement(t *testing.T) {
	for round := 0; round < 10; round++ {
		cfg := testConfig()
		cfg.SessionDuration = 5 * time.Millisecond
		f := newFixture(t, cfg, 0.2)
		ctx := context.Background()
		_, err := f.svc.LoadRoster(ctx, []string{"A", "B", "C"}, nil)
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for _, w := range []string{"A", "B", "C", "A", "B", "C"} {
			wg.Add(1)
			go func(w string) {
				defer wg.Done()
				time.Sleep(4 * time.Millisecond)
				if _, err := f.svc.SubmitDecision(ctx, w, domain.DecisionStop); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, ports.ErrPoolClosed)
				}
			}(w)
		}
		wg.Wait()

		require.Eventually(t, func() bool { return f.svc.GetPoolStatus() == domain.PoolClosed }, time.Second, time.Millisecond)
		assert.LessOrEqual(t, wins.Load(), int32(1))
		assert.Equal(t, 1, f.store.settlementCount())
	}
}

func TestSessionService_ReloadDuringSettlementRejected(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A"}, nil)
	require.NoError(t, err)

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.pricer.mu.Lock()
	f.pricer.block = block
	f.pricer.entered = entered
	f.pricer.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SubmitDecision(ctx, "A", domain.DecisionStop)
		done <- err
	}()
	<-entered

	assert.Equal(t, domain.PoolClosing, f.svc.GetPoolStatus())
	_, err = f.svc.LoadRoster(ctx, []string{"B"}, nil)
	assert.ErrorIs(t, err, ports.ErrSettlementInProgress)
	_, err = f.svc.Reset(ctx)
	assert.ErrorIs(t, err, ports.ErrSettlementInProgress)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	assert.ErrorIs(t, err, ports.ErrPoolClosed)

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, domain.PoolClosed, f.svc.GetPoolStatus())
}

func TestSessionService_GetPositionsMarks(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)

	f.pricer.set(12, nil)
	views, err := f.svc.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "A", views[0].WalletID)
	assert.True(t, views[0].PriceAvailable)
	assert.InDelta(t, 1040.0, views[0].MarkValue, 1e-9)
	assert.InDelta(t, 4.0, views[0].ProfitLossPct, 1e-9)

	f.pricer.set(0, errors.New("down"))
	views, err = f.svc.GetPositions(ctx)
	require.NoError(t, err, "reads degrade instead of failing")
	for _, v := range views {
		assert.False(t, v.PriceAvailable)
		assert.Zero(t, v.MarkValue)
	}
	assert.InDelta(t, 20.0, views[0].TokenBalance, 1e-9)
}

func TestSessionService_Restore(t *testing.T) {
	f := newFixture(t, testConfig(), 0.2)
	ctx := context.Background()
	_, err := f.svc.LoadRoster(ctx, []string{"A", "B"}, []string{"alpha", "beta"})
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, "B", domain.DecisionStop)
	require.NoError(t, err)
	f.svc.Shutdown()

	// A fresh process over the same store.
	restarted, err := NewSessionService(testConfig(), &mockLogger{}, f.store, f.pricer, FixedSampler(0.2))
	require.NoError(t, err)
	require.NoError(t, restarted.Restore(ctx))

	assert.Equal(t, domain.PoolClosed, restarted.GetPoolStatus())
	assert.Equal(t, f.svc.GetLeaderboard().SessionID, restarted.GetLeaderboard().SessionID)
	assert.Equal(t, []domain.Participant{{WalletID: "A", DisplayName: "alpha"}, {WalletID: "B", DisplayName: "beta"}}, restarted.Summary().Roster)

	_, err = restarted.Reopen(ctx)
	require.NoError(t, err)
	res, err := restarted.SubmitDecision(ctx, "A", domain.DecisionBuy)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position.TradeCount)
}

func TestUniformSampler(t *testing.T) {
	a := NewUniformSampler(0.1, 0.5, 42)
	b := NewUniformSampler(0.1, 0.5, 42)
	for i := 0; i < 1000; i++ {
		x := a.Sample()
		assert.Equal(t, x, b.Sample(), "same seed, same sequence")
		assert.GreaterOrEqual(t, x, 0.1)
		assert.Less(t, x, 0.5)
	}
}
