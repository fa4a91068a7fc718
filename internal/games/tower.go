package games

import (
	"fmt"

	"github.com/luckforge/casino-core/internal/engine"
)

// TowerDifficulty selects a tiles/eggs/levels configuration.
type TowerDifficulty string

const (
	TowerEasy   TowerDifficulty = "easy"
	TowerMedium TowerDifficulty = "medium"
	TowerHard   TowerDifficulty = "hard"
	TowerExpert TowerDifficulty = "expert"
	TowerMaster TowerDifficulty = "master"
)

// TowerConfig describes one difficulty tier: each of Levels floors has
// Tiles slots of which Eggs are safe.
type TowerConfig struct {
	Tiles  int `json:"tiles"`
	Eggs   int `json:"eggs"`
	Levels int `json:"levels"`
}

// towerConfigs is the canonical difficulty table. Master keeps easy's four
// tiles but hides a single egg, which is what makes its per-level odds the
// steepest despite the wider floor.
var towerConfigs = map[TowerDifficulty]TowerConfig{
	TowerEasy:   {Tiles: 4, Eggs: 3, Levels: 5},
	TowerMedium: {Tiles: 3, Eggs: 2, Levels: 6},
	TowerHard:   {Tiles: 3, Eggs: 1, Levels: 7},
	TowerExpert: {Tiles: 2, Eggs: 1, Levels: 8},
	TowerMaster: {Tiles: 4, Eggs: 1, Levels: 8},
}

// TowerConfigFor resolves a difficulty tier.
func TowerConfigFor(d TowerDifficulty) (TowerConfig, error) {
	cfg, ok := towerConfigs[d]
	if !ok {
		return TowerConfig{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, d)
	}
	return cfg, nil
}

// TowerDifficulties lists the valid tiers in ascending risk order.
func TowerDifficulties() []TowerDifficulty {
	return []TowerDifficulty{TowerEasy, TowerMedium, TowerHard, TowerExpert, TowerMaster}
}

// LevelMultiplier is the factor a survivor's cumulative multiplier gains
// per completed floor: the inverse survival odds less the house edge.
func (c TowerConfig) LevelMultiplier() float64 {
	return (float64(c.Tiles) / float64(c.Eggs)) * (1 - HouseEdge)
}

// NonceStride is the nonce spacing between floors, at least the widest
// window one floor's distinct-set draw can consume, so no two floors ever
// share a hash input.
func (c TowerConfig) NonceStride() uint64 {
	return uint64(engine.MaxNonceSpan(c.Eggs, c.Tiles))
}

// TowerSafeTiles derives the safe (egg) positions for one floor as 0-based
// tile indexes. Each floor draws at its own nonce window off the session's
// base nonce.
func TowerSafeTiles(s engine.Seeds, baseNonce uint64, level int, cfg TowerConfig) ([]int, error) {
	nonce := baseNonce + uint64(level)*cfg.NonceStride()
	drawn, err := engine.DeriveDistinctSet(s.Server, s.Client, nonce, cfg.Eggs, cfg.Tiles)
	if err != nil {
		return nil, fmt.Errorf("tower level %d draw: %w", level, err)
	}
	tiles := make([]int, len(drawn))
	for i, v := range drawn {
		tiles[i] = v - 1
	}
	return tiles, nil
}

// TowerTileSafe reports whether the chosen tile on the given floor is safe.
func TowerTileSafe(s engine.Seeds, baseNonce uint64, level, tileIndex int, cfg TowerConfig) (bool, error) {
	if tileIndex < 0 || tileIndex >= cfg.Tiles {
		return false, fmt.Errorf("%w: tile index %d outside [0,%d)", ErrInvalidInput, tileIndex, cfg.Tiles)
	}
	safe, err := TowerSafeTiles(s, baseNonce, level, cfg)
	if err != nil {
		return false, err
	}
	for _, t := range safe {
		if t == tileIndex {
			return true, nil
		}
	}
	return false, nil
}
