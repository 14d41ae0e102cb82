// Package session owns the single global session lifecycle.
//
// The lifecycle is one versioned word (epoch + phase) updated only by
// compare-and-swap. Open -> Settling succeeds for exactly one caller per
// epoch, which is what makes settlement exactly-once when a manual stop races
// the expiry timer. Trading calls hold the admission gate for reading across
// their check-then-mutate; every transition that leaves Open drains the gate
// so no mutation can land after the transition.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tradingArena/internal/domain"
	"tradingArena/internal/ports"
)

// Phase is the internal lifecycle phase.
type Phase uint8

const (
	PhaseOpen     Phase = iota
	PhaseSettling       // Open -> Closed transition in flight
	PhaseClosed
	PhaseLoading // Roster load, reset or reopen in flight
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseSettling:
		return "settling"
	case PhaseClosed:
		return "closed"
	case PhaseLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// State is a decoded lifecycle word.
type State struct {
	Epoch uint64
	Phase Phase
}

// Status maps the phase to the externally visible pool status.
func (s State) Status() domain.PoolStatus {
	switch s.Phase {
	case PhaseOpen:
		return domain.PoolOpen
	case PhaseSettling:
		return domain.PoolClosing
	default:
		return domain.PoolClosed
	}
}

func pack(s State) uint64   { return s.Epoch<<2 | uint64(s.Phase) }
func unpack(w uint64) State { return State{Epoch: w >> 2, Phase: Phase(w & 3)} }

// Machine is the Session State Machine. The zero value is not usable; use NewMachine.
type Machine struct {
	word atomic.Uint64
	gate sync.RWMutex

	mu       sync.Mutex // Guards roster, members and the timer
	roster   []domain.Participant
	members  map[string]struct{}
	timer    *ExpiryTimer
	deadline time.Time
	logger   ports.Logger
}

// NewMachine returns a machine in the Closed phase with an empty roster.
// Nothing trades until the first roster load or reset.
func NewMachine(logger ports.Logger) *Machine {
	m := &Machine{
		members: make(map[string]struct{}),
		timer:   NewExpiryTimer(),
		logger:  logger,
	}
	m.word.Store(pack(State{Phase: PhaseClosed}))
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return unpack(m.word.Load())
}

func (m *Machine) cas(from, to State) bool {
	return m.word.CompareAndSwap(pack(from), pack(to))
}

// drain waits for every admitted trading call to finish. Calls admitted after
// the phase left Open are rejected by Admit, so an empty critical section is enough.
func (m *Machine) drain() {
	m.gate.Lock()
	defer m.gate.Unlock()
}

// Admit checks that the session is open and walletID is on the roster, and
// holds the admission gate until release is called. Callers perform their
// ledger mutation between Admit and release.
func (m *Machine) Admit(walletID string) (release func(), err error) {
	m.gate.RLock()
	if m.State().Phase != PhaseOpen {
		m.gate.RUnlock()
		return nil, ports.ErrPoolClosed
	}
	if !m.IsMember(walletID) {
		m.gate.RUnlock()
		return nil, fmt.Errorf("%w: wallet %q is not on the roster", ports.ErrInvalidInput, walletID)
	}
	return m.gate.RUnlock, nil
}

// IsMember reports whether walletID is on the current roster.
func (m *Machine) IsMember(walletID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[walletID]
	return ok
}

// Roster returns a copy of the current roster in load order.
func (m *Machine) Roster() []domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Participant(nil), m.roster...)
}

// DisplayNames returns wallet id -> display name for the current roster.
func (m *Machine) DisplayNames() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make(map[string]string, len(m.roster))
	for _, p := range m.roster {
		names[p.WalletID] = p.DisplayName
	}
	return names
}

// Deadline returns when the armed timer fires, or the zero time.
func (m *Machine) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.timer.Pending() {
		return time.Time{}
	}
	return m.deadline
}

// BeginReload moves Open or Closed to Loading under a new epoch, cancels the
// timer and drains in-flight trading calls. A settlement or another reload in
// flight rejects with ports.ErrSettlementInProgress.
func (m *Machine) BeginReload() (State, error) {
	for {
		cur := m.State()
		if cur.Phase == PhaseSettling || cur.Phase == PhaseLoading {
			return cur, ports.ErrSettlementInProgress
		}
		next := State{Epoch: cur.Epoch + 1, Phase: PhaseLoading}
		if m.cas(cur, next) {
			m.Disarm()
			m.drain()
			return next, nil
		}
	}
}

// FinishReload installs the roster and publishes phase for the loading epoch.
func (m *Machine) FinishReload(s State, roster []domain.Participant, phase Phase) {
	m.mu.Lock()
	m.roster = append([]domain.Participant(nil), roster...)
	m.members = make(map[string]struct{}, len(roster))
	for _, p := range roster {
		m.members[p.WalletID] = struct{}{}
	}
	m.mu.Unlock()
	m.word.Store(pack(State{Epoch: s.Epoch, Phase: phase}))
}

// Reopen moves Closed back to Open under a new epoch, keeping the roster.
// It cancels any pending timer and does not restart it. An already open
// session keeps its epoch but loses its countdown.
func (m *Machine) Reopen() (State, error) {
	for {
		cur := m.State()
		switch cur.Phase {
		case PhaseOpen:
			m.Disarm()
			return cur, nil
		case PhaseSettling, PhaseLoading:
			return cur, ports.ErrSettlementInProgress
		}
		next := State{Epoch: cur.Epoch + 1, Phase: PhaseOpen}
		if m.cas(cur, next) {
			m.Disarm()
			return next, nil
		}
	}
}

// BeginSettle claims the Open -> Settling transition for epoch. Exactly one
// caller per epoch gets ok == true; it then owns the settlement and must call
// CommitSettle or AbortSettle.
func (m *Machine) BeginSettle(epoch uint64) (State, bool) {
	from := State{Epoch: epoch, Phase: PhaseOpen}
	to := State{Epoch: epoch, Phase: PhaseSettling}
	if !m.cas(from, to) {
		return m.State(), false
	}
	m.drain()
	return to, true
}

// CommitSettle finishes a claimed settlement: Settling -> Closed, timer disarmed.
func (m *Machine) CommitSettle(s State) {
	m.Disarm()
	m.cas(s, State{Epoch: s.Epoch, Phase: PhaseClosed})
}

// AbortSettle rolls a claimed settlement back to Open. It reports whether the
// expiry timer had already fired for this epoch, in which case the caller
// should re-arm it.
func (m *Machine) AbortSettle(s State) (timerSpent bool) {
	m.cas(s, State{Epoch: s.Epoch, Phase: PhaseOpen})
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer.Fired() && m.timer.Epoch() == s.Epoch
}

// Arm (re)starts the expiry countdown for epoch. It reports false and arms
// nothing unless epoch is the current epoch and the session is open, so a late
// re-arm can never replace the countdown of a newer session.
func (m *Machine) Arm(epoch uint64, d time.Duration, fire func(epoch uint64)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.State(); cur.Epoch != epoch || cur.Phase != PhaseOpen {
		m.logger.Debug(context.Background(), "Stale expiry timer not armed", map[string]interface{}{
			"epoch": epoch, "currentEpoch": cur.Epoch, "phase": cur.Phase.String(),
		})
		return false
	}
	m.deadline = time.Now().Add(d)
	m.timer.Arm(epoch, d, fire)
	m.logger.Info(context.Background(), "Expiry timer armed", map[string]interface{}{"epoch": epoch, "duration": d.String()})
	return true
}

// Disarm cancels a pending countdown. Best effort: a timer already firing is
// resolved by BeginSettle.
func (m *Machine) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer.Stop() {
		m.logger.Info(context.Background(), "Expiry timer cancelled", map[string]interface{}{"epoch": m.timer.Epoch()})
	}
}
