package games

import (
	"math"

	"github.com/luckforge/casino-core/internal/engine"
)

const (
	// CrashMinPoint is the floor of the crash distribution; a round can
	// bust instantly but never below 1.00x.
	CrashMinPoint = 1.00
	// CrashMaxPoint caps the tail of the distribution.
	CrashMaxPoint = 10_000.0
)

// CrashPoint derives a round's crash multiplier from its seed triple.
//
// The point comes from the same inverse-uniform transform as limbo, floored
// to two decimals and clamped to [1.00, 10000]. Deriving it from the triple
// (rather than an unseeded CSPRNG) keeps crash rounds verifiable with the
// same reveal-the-server-seed protocol as every other game.
func CrashPoint(t engine.Triple) float64 {
	f := engine.DeriveFloat(t.Server, t.Client, t.Nonce)
	point := math.Floor(inverseUniform(f, CrashMaxPoint)*100) / 100
	if point < CrashMinPoint {
		return CrashMinPoint
	}
	return point
}

// CrashCashOutWins reports whether cashing out at the given multiplier beats
// the round's crash point. The boundary is a loss: at multiplier ==
// crashPoint the round has already crashed.
func CrashCashOutWins(multiplier, crashPoint float64) bool {
	return multiplier < crashPoint
}
