package games

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// GameType tags a settled outcome with the game that produced it. The set
// is closed; dispatch is by tag, not by subtype.
type GameType string

const (
	GameDice        GameType = "dice"
	GameLimbo       GameType = "limbo"
	GameKeno        GameType = "keno"
	GameCrash       GameType = "crash"
	GameDragonTower GameType = "dragon-tower"
)

// HouseEdge is the fraction of the fair multiplier retained by the house
// for dice, limbo, crash and dragon tower. Keno's edge lives in its payout
// table instead.
const HouseEdge = 0.01

// ErrInvalidInput marks malformed or out-of-range wager parameters.
// Engines reject before any randomness is drawn or state is touched.
var ErrInvalidInput = errors.New("invalid input")

// ErrInsufficientBalance is the advisory pre-check failure. The settlement
// ledger re-validates authoritatively inside its transaction.
var ErrInsufficientBalance = errors.New("insufficient balance")

// validateStake applies the preconditions shared by every engine:
// a positive bet that the player's current balance can cover.
func validateStake(bet, balance decimal.Decimal) error {
	if bet.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: bet amount must be positive", ErrInvalidInput)
	}
	if balance.LessThan(bet) {
		return ErrInsufficientBalance
	}
	return nil
}

// payoutFor converts a float multiplier into a monetary payout, rounded to
// the cent. All balance arithmetic downstream stays in decimal.
func payoutFor(bet decimal.Decimal, multiplier float64) decimal.Decimal {
	return bet.Mul(decimal.NewFromFloat(multiplier)).Round(2)
}
