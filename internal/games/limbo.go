package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/engine"
)

const (
	limboMinTarget = 1.01
	limboMaxTarget = 1_000_000
)

// LimboParams are the player-chosen inputs for a limbo wager.
type LimboParams struct {
	TargetMultiplier float64 `json:"targetMultiplier"`
}

// LimboResult describes a settled limbo wager.
type LimboResult struct {
	Outcome float64         `json:"outcomeMultiplier"`
	Won     bool            `json:"won"`
	Payout  decimal.Decimal `json:"payout"`
}

// inverseUniform maps a uniform float in [0, 1) onto the heavy-tailed
// multiplier distribution shared by limbo and crash: 1/(f*(1-edge)),
// capped. f == 0 maps to the cap.
func inverseUniform(f, cap float64) float64 {
	if f == 0 {
		return cap
	}
	out := 1 / (f * (1 - HouseEdge))
	if out > cap {
		return cap
	}
	return out
}

// PlayLimbo draws the outcome multiplier from the triple and resolves the
// wager. The player wins when the outcome reaches their target; the payout
// is the target multiplier less the house edge.
func PlayLimbo(t engine.Triple, p LimboParams, bet, balance decimal.Decimal) (LimboResult, error) {
	if err := validateStake(bet, balance); err != nil {
		return LimboResult{}, err
	}
	if p.TargetMultiplier < limboMinTarget {
		return LimboResult{}, fmt.Errorf("%w: target multiplier must be at least %.2fx", ErrInvalidInput, limboMinTarget)
	}
	if p.TargetMultiplier > limboMaxTarget {
		return LimboResult{}, fmt.Errorf("%w: target multiplier exceeds %dx cap", ErrInvalidInput, limboMaxTarget)
	}

	f := engine.DeriveFloat(t.Server, t.Client, t.Nonce)
	outcome := inverseUniform(f, limboMaxTarget)

	res := LimboResult{
		Outcome: outcome,
		Won:     outcome >= p.TargetMultiplier,
		Payout:  decimal.Zero,
	}
	if res.Won {
		res.Payout = payoutFor(bet, p.TargetMultiplier*(1-HouseEdge))
	}
	return res, nil
}
