package games

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/engine"
)

const (
	diceMinTarget = 0.01
	diceMaxTarget = 99.99
)

// DiceParams are the player-chosen inputs for a dice roll.
type DiceParams struct {
	Target   float64 `json:"target"`
	RollOver bool    `json:"rollOver"`
}

// DiceResult describes a settled dice roll.
type DiceResult struct {
	Roll       float64         `json:"roll"`
	Won        bool            `json:"won"`
	WinChance  float64         `json:"winChance"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
}

// PlayDice draws a roll in [0, 100) from the triple and resolves the wager.
// Roll-over wins strictly above the target, roll-under strictly below, so
// the target itself always loses and the win chance stays inside (0, 1).
func PlayDice(t engine.Triple, p DiceParams, bet, balance decimal.Decimal) (DiceResult, error) {
	if err := validateStake(bet, balance); err != nil {
		return DiceResult{}, err
	}
	if p.Target < diceMinTarget || p.Target > diceMaxTarget {
		return DiceResult{}, fmt.Errorf("%w: target must be between %.2f and %.2f", ErrInvalidInput, diceMinTarget, diceMaxTarget)
	}

	roll := engine.DeriveFloat(t.Server, t.Client, t.Nonce) * 100

	winChance := p.Target / 100
	if p.RollOver {
		winChance = (100 - p.Target) / 100
	}
	multiplier := (1 / winChance) * (1 - HouseEdge)

	won := roll < p.Target
	if p.RollOver {
		won = roll > p.Target
	}

	res := DiceResult{
		Roll:       math.Floor(roll*100) / 100,
		Won:        won,
		WinChance:  winChance,
		Multiplier: multiplier,
		Payout:     decimal.Zero,
	}
	if won {
		res.Payout = payoutFor(bet, multiplier)
	}
	return res, nil
}
