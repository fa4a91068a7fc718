package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/engine"
)

const (
	// KenoPicks is the exact number of spots a player selects.
	KenoPicks = 10
	// KenoSquares is the size of the number board.
	KenoSquares = 80
	// KenoDraws is how many distinct numbers the house draws per round.
	KenoDraws = 20
)

// kenoPayouts maps match count to multiplier. The table, not a formula,
// carries keno's house edge: the hypergeometric expectation over it puts
// long-run return near 48%.
var kenoPayouts = [KenoPicks + 1]float64{
	0, 0, 0, 0, // 0-3 matches
	1,    // 4
	2,    // 5
	10,   // 6
	50,   // 7
	200,  // 8
	1000, // 9
	5000, // 10
}

// KenoMultiplier returns the payout multiplier for a given match count.
func KenoMultiplier(matches int) float64 {
	if matches < 0 || matches > KenoPicks {
		return 0
	}
	return kenoPayouts[matches]
}

// KenoParams are the player-chosen inputs for a keno wager.
type KenoParams struct {
	Picked []int `json:"pickedNumbers"`
}

// KenoResult describes a settled keno wager.
type KenoResult struct {
	Drawn      []int           `json:"drawnNumbers"`
	Matches    int             `json:"matches"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
}

// PlayKeno draws 20 distinct numbers from the board and resolves the wager
// by match count. Picks are validated before any number is drawn.
func PlayKeno(t engine.Triple, p KenoParams, bet, balance decimal.Decimal) (KenoResult, error) {
	if err := validateStake(bet, balance); err != nil {
		return KenoResult{}, err
	}
	if len(p.Picked) != KenoPicks {
		return KenoResult{}, fmt.Errorf("%w: must pick exactly %d numbers, got %d", ErrInvalidInput, KenoPicks, len(p.Picked))
	}
	seen := make(map[int]bool, KenoPicks)
	for _, n := range p.Picked {
		if n < 1 || n > KenoSquares {
			return KenoResult{}, fmt.Errorf("%w: pick %d outside [1,%d]", ErrInvalidInput, n, KenoSquares)
		}
		if seen[n] {
			return KenoResult{}, fmt.Errorf("%w: duplicate pick %d", ErrInvalidInput, n)
		}
		seen[n] = true
	}

	drawn, err := engine.DeriveDistinctSet(t.Server, t.Client, t.Nonce, KenoDraws, KenoSquares)
	if err != nil {
		return KenoResult{}, fmt.Errorf("keno draw: %w", err)
	}

	drawnSet := make(map[int]bool, KenoDraws)
	for _, n := range drawn {
		drawnSet[n] = true
	}
	matches := 0
	for _, n := range p.Picked {
		if drawnSet[n] {
			matches++
		}
	}

	multiplier := KenoMultiplier(matches)
	res := KenoResult{
		Drawn:      drawn,
		Matches:    matches,
		Multiplier: multiplier,
		Payout:     decimal.Zero,
	}
	if multiplier > 0 {
		res.Payout = payoutFor(bet, multiplier)
	}
	return res, nil
}
