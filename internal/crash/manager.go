// Package crash owns the shared multiplayer crash round: one live round at
// a time, a participant map, and the arbitration of cash-out timing against
// the round's predetermined crash point.
package crash

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/games"
)

var (
	// ErrNoActiveRound means the caller acted before any round existed.
	ErrNoActiveRound = errors.New("no active round")
	// ErrRoundCrashed means the round had already crashed, either by the
	// requested multiplier reaching the crash point or by elapsed time.
	ErrRoundCrashed = errors.New("round already crashed")
	// ErrNoBetFound means the user has no open position in the current round.
	ErrNoBetFound = errors.New("no bet found")
)

const (
	minRoundDuration = 3 * time.Second
	maxRoundDuration = 15 * time.Second
	// durationPerPoint stretches a round's lifetime with its crash point
	// so higher multipliers take longer to reach.
	durationPerPoint = 800 * time.Millisecond
)

// Status is a round lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusCrashed Status = "crashed"
)

// Round is one crash round. The crash point is fixed at creation from the
// round's seed triple and is never exposed while the round is active.
type Round struct {
	CrashPoint float64
	Triple     engine.Triple
	StartTime  time.Time
	Status     Status
}

// duration is how long the round runs before it crashes by elapsed time.
func (r *Round) duration() time.Duration {
	d := minRoundDuration + time.Duration(r.CrashPoint*float64(durationPerPoint))
	if d < minRoundDuration {
		return minRoundDuration
	}
	if d > maxRoundDuration {
		return maxRoundDuration
	}
	return d
}

// Bet is an open position: staked, not yet cashed out.
type Bet struct {
	Amount   decimal.Decimal
	JoinedAt time.Time
}

// RoundView is the client-safe projection of the current round. It carries
// the server-seed commitment instead of the seed itself so the crash point
// cannot be computed before the round settles.
type RoundView struct {
	Status         Status    `json:"status"`
	StartTime      time.Time `json:"startTime"`
	ServerSeedHash string    `json:"serverSeedHash"`
	ClientSeed     string    `json:"clientSeed"`
	Nonce          uint64    `json:"nonce"`
}

// CashOutResult is a successful cash-out, ready for the settlement ledger.
// The triple is included so the settled record reveals the round's seeds.
type CashOutResult struct {
	BetAmount  decimal.Decimal
	Multiplier float64
	Payout     decimal.Decimal
	CrashPoint float64
	Triple     engine.Triple
}

// CrashedBetsFunc receives the seed triple, crash point, and still-open
// positions of a round the moment it rolls over. It is invoked after the
// manager has released its lock, so settling many positions does not stall
// concurrent round traffic; by then the positions are already removed from
// the round, so the callback may call back into the Manager.
type CrashedBetsFunc func(round Round, lost map[int64]Bet)

// lostBatch is a rolled-over round's still-open positions, carried out of
// the critical section to the loss callback.
type lostBatch struct {
	round Round
	bets  map[int64]Bet
}

// Manager serializes all access to the single shared round. Every public
// method takes the one lock and re-checks round expiry before acting, so a
// cash-out can never race a rollover into succeeding against a stale crash
// point.
type Manager struct {
	mu           sync.Mutex
	round        *Round
	bets         map[int64]Bet
	roundCounter uint64

	onCrashed CrashedBetsFunc
	now       func() time.Time
	log       *zap.Logger
}

// NewManager returns a Manager with no live round; the first access starts
// one. onCrashed may be nil.
func NewManager(log *zap.Logger, onCrashed CrashedBetsFunc) *Manager {
	return &Manager{
		bets:      make(map[int64]Bet),
		onCrashed: onCrashed,
		now:       time.Now,
		log:       log,
	}
}

// ensureRoundLocked rolls an expired (or missing) round over to a fresh
// active one. Callers must hold mu and must hand a non-nil batch to
// notifyCrashed after releasing it.
func (m *Manager) ensureRoundLocked() (*Round, *lostBatch) {
	var lost *lostBatch
	if m.round != nil && m.round.Status == StatusActive {
		if m.now().Sub(m.round.StartTime) < m.round.duration() {
			return m.round, nil
		}
		lost = m.crashRoundLocked()
	}

	m.roundCounter++
	triple := engine.Triple{
		Seeds: engine.NewSeeds(),
		Nonce: uint64(m.now().UnixMilli()) + m.roundCounter,
	}
	m.round = &Round{
		CrashPoint: games.CrashPoint(triple),
		Triple:     triple,
		StartTime:  m.now(),
		Status:     StatusActive,
	}
	m.bets = make(map[int64]Bet)
	m.log.Info("crash round started",
		zap.Float64("crash_point", m.round.CrashPoint),
		zap.Uint64("nonce", triple.Nonce),
	)
	return m.round, lost
}

// crashRoundLocked marks the live round crashed and detaches its still-open
// positions for the loss callback. The map swap stays inside the lock; the
// settlements themselves happen outside it.
func (m *Manager) crashRoundLocked() *lostBatch {
	m.round.Status = StatusCrashed
	lost := m.bets
	m.bets = make(map[int64]Bet)
	if len(lost) == 0 {
		return nil
	}
	m.log.Info("crash round ended with open positions",
		zap.Float64("crash_point", m.round.CrashPoint),
		zap.Int("lost_bets", len(lost)),
	)
	return &lostBatch{round: *m.round, bets: lost}
}

// notifyCrashed hands a rolled-over round's positions to the loss callback.
// Must be called without holding mu.
func (m *Manager) notifyCrashed(lost *lostBatch) {
	if lost == nil || m.onCrashed == nil {
		return
	}
	m.onCrashed(lost.round, lost.bets)
}

// CurrentRound returns the live round, starting one if needed.
func (m *Manager) CurrentRound() RoundView {
	m.mu.Lock()
	r, lost := m.ensureRoundLocked()
	view := viewOf(r)
	m.mu.Unlock()

	m.notifyCrashed(lost)
	return view
}

func viewOf(r *Round) RoundView {
	return RoundView{
		Status:         r.Status,
		StartTime:      r.StartTime,
		ServerSeedHash: engine.HashSeed(r.Triple.Server),
		ClientSeed:     r.Triple.Client,
		Nonce:          r.Triple.Nonce,
	}
}

// PlaceBet stakes amount on the current round. A second bet by the same
// user replaces the first; a user holds at most one open position per
// round. The replaced position, if any, is returned so the caller can
// release its escrowed stake.
func (m *Manager) PlaceBet(userID int64, amount decimal.Decimal) (RoundView, *Bet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return RoundView{}, nil, games.ErrInvalidInput
	}

	m.mu.Lock()
	r, lost := m.ensureRoundLocked()
	var replaced *Bet
	if prior, ok := m.bets[userID]; ok {
		replaced = &prior
	}
	m.bets[userID] = Bet{Amount: amount, JoinedAt: m.now()}
	view := viewOf(r)
	m.mu.Unlock()

	m.notifyCrashed(lost)
	return view, replaced, nil
}

// CashOut closes the user's position at the given multiplier. The staleness
// check runs first: a round that has logically crashed by elapsed time
// rejects the cash-out even though no other call has rolled it over yet.
// Cashing out at or above the crash point is a loss, never a win.
//
// On success the position is removed, so a user cannot cash the same join
// out twice.
func (m *Manager) CashOut(userID int64, multiplier float64) (CashOutResult, error) {
	m.mu.Lock()
	res, lost, err := m.cashOutLocked(userID, multiplier)
	m.mu.Unlock()

	m.notifyCrashed(lost)
	return res, err
}

func (m *Manager) cashOutLocked(userID int64, multiplier float64) (CashOutResult, *lostBatch, error) {
	if m.round == nil {
		return CashOutResult{}, nil, ErrNoActiveRound
	}

	var lost *lostBatch
	if m.round.Status == StatusActive && m.now().Sub(m.round.StartTime) >= m.round.duration() {
		lost = m.crashRoundLocked()
	}
	if m.round.Status != StatusActive {
		return CashOutResult{}, lost, ErrRoundCrashed
	}

	bet, ok := m.bets[userID]
	if !ok {
		return CashOutResult{}, lost, ErrNoBetFound
	}

	if !games.CrashCashOutWins(multiplier, m.round.CrashPoint) {
		return CashOutResult{}, lost, ErrRoundCrashed
	}

	delete(m.bets, userID)
	return CashOutResult{
		BetAmount:  bet.Amount,
		Multiplier: multiplier,
		Payout:     bet.Amount.Mul(decimal.NewFromFloat(multiplier)).Round(2),
		CrashPoint: m.round.CrashPoint,
		Triple:     m.round.Triple,
	}, lost, nil
}
