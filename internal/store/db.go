package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/games"
)

var (
	// ErrUserNotFound means the principal does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientBalance is the authoritative settlement-time check;
	// the advisory engine-side check may already have passed on a stale read.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSessionNotFound means no tower session matches the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict means a compare-and-swap update lost to a
	// concurrent request for the same session.
	ErrSessionConflict = errors.New("session modified concurrently")
	// ErrSessionExists means the user already has an active tower session.
	ErrSessionExists = errors.New("active session already exists")
)

// User is the authenticated principal as the core sees it: an id and a
// decimal balance. Balance mutates only through the settlement and escrow
// paths, each of which writes its ledger entry in the same transaction.
type User struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Settlement is one wager ready to be applied to the ledger: the debit, the
// payout (zero on a loss), the outcome payload, and the seed triple that
// produced it.
type Settlement struct {
	UserID    int64
	Game      games.GameType
	BetAmount decimal.Decimal
	Payout    decimal.Decimal
	GameData  any
	Triple    engine.Triple
}

// Transaction is one ledger entry. A settled wager writes a "bet" debit and,
// when the payout is positive, a "win" credit; the bet's BalanceAfter equals
// the win's BalanceBefore, and the final BalanceAfter matches the user's
// stored balance.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        int64           `json:"userId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Reference     string          `json:"reference"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// GameRecord is the immutable outcome record, written exactly once per
// settled wager. The seed triple is stored verbatim for later verification.
type GameRecord struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"userId"`
	GameType   games.GameType  `json:"gameType"`
	BetAmount  decimal.Decimal `json:"betAmount"`
	Payout     decimal.Decimal `json:"payout"`
	Profit     decimal.Decimal `json:"profit"`
	GameData   string          `json:"gameData"`
	ServerSeed string          `json:"serverSeed"`
	ClientSeed string          `json:"clientSeed"`
	Nonce      uint64          `json:"nonce"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// HouseStats is the daily per-game aggregate, upserted inside each
// settlement.
type HouseStats struct {
	Date         time.Time       `json:"date"`
	GameType     games.GameType  `json:"gameType"`
	TotalGames   int64           `json:"totalGames"`
	TotalWagered decimal.Decimal `json:"totalWagered"`
	TotalPayout  decimal.Decimal `json:"totalPayout"`
	HouseProfit  decimal.Decimal `json:"houseProfit"`
}

// TowerSessionStatus is a dragon tower session lifecycle state.
type TowerSessionStatus string

const (
	TowerActive    TowerSessionStatus = "active"
	TowerBusted    TowerSessionStatus = "busted"
	TowerCollected TowerSessionStatus = "collected"
	TowerCompleted TowerSessionStatus = "completed"
)

// TowerSession is the server-side state of one dragon tower game. The
// client only ever supplies a session id and a tile index; bet amount,
// seeds and progress live here. Revision guards level advances: every
// mutation must name the revision it read, so two concurrent picks for the
// same tower cannot both succeed.
type TowerSession struct {
	ID         string                `json:"id"`
	UserID     int64                 `json:"userId"`
	Difficulty games.TowerDifficulty `json:"difficulty"`
	BetAmount  decimal.Decimal       `json:"betAmount"`
	Level      int                   `json:"level"`
	Multiplier float64               `json:"multiplier"`
	Seeds      engine.Seeds          `json:"-"`
	NonceBase  uint64                `json:"-"`
	Revision   int64                 `json:"-"`
	Status     TowerSessionStatus    `json:"status"`
	CreatedAt  time.Time             `json:"createdAt"`
}
