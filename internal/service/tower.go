package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/games"
	"github.com/luckforge/casino-core/internal/store"
)

// TowerStartRequest opens a dragon tower session.
type TowerStartRequest struct {
	BetAmount  decimal.Decimal       `json:"betAmount"`
	Difficulty games.TowerDifficulty `json:"difficulty"`
	ClientSeed string                `json:"clientSeed,omitempty"`
}

// TowerView is the client-visible state of a tower session. The server seed
// stays hidden behind its hash until the session terminates; safe tile
// positions are never present while the session is active.
type TowerView struct {
	SessionID      string                   `json:"sessionId"`
	Difficulty     games.TowerDifficulty    `json:"difficulty"`
	Config         games.TowerConfig        `json:"config"`
	BetAmount      decimal.Decimal          `json:"betAmount"`
	Level          int                      `json:"level"`
	Multiplier     float64                  `json:"multiplier"`
	NextMultiplier float64                  `json:"nextMultiplier"`
	Status         store.TowerSessionStatus `json:"status"`
	ServerSeedHash string                   `json:"serverSeedHash"`
	ClientSeed     string                   `json:"clientSeed"`
	NonceBase      uint64                   `json:"nonceBase"`
}

// TowerStartResponse is a freshly opened session plus the balance left
// after its stake was debited.
type TowerStartResponse struct {
	TowerView
	NewBalance decimal.Decimal `json:"newBalance"`
}

// TowerPickResponse is the result of one tile pick. Terminal picks carry the
// settlement fields and the revealed seed triple.
type TowerPickResponse struct {
	TowerView
	TileIndex    int              `json:"tileIndex"`
	Safe         bool             `json:"safe"`
	SafeTiles    []int            `json:"safeTiles,omitempty"`
	Payout       *decimal.Decimal `json:"payout,omitempty"`
	NewBalance   *decimal.Decimal `json:"newBalance,omitempty"`
	ProvablyFair *ProvablyFair    `json:"provablyFair,omitempty"`
}

// TowerCollectResponse is a settled early cash-out.
type TowerCollectResponse struct {
	TowerView
	Payout       decimal.Decimal `json:"payout"`
	NewBalance   decimal.Decimal `json:"newBalance"`
	ProvablyFair ProvablyFair    `json:"provablyFair"`
}

func (s *Service) towerView(sess store.TowerSession, cfg games.TowerConfig) TowerView {
	return TowerView{
		SessionID:      sess.ID,
		Difficulty:     sess.Difficulty,
		Config:         cfg,
		BetAmount:      sess.BetAmount,
		Level:          sess.Level,
		Multiplier:     sess.Multiplier,
		NextMultiplier: round2(sess.Multiplier * cfg.LevelMultiplier()),
		Status:         sess.Status,
		ServerSeedHash: engine.HashSeed(sess.Seeds.Server),
		ClientSeed:     sess.Seeds.Client,
		NonceBase:      sess.NonceBase,
	}
}

// StartTower opens a session, committing to its seeds up front. The stake
// is debited here and held in escrow until the tower terminates, so the
// session stays payable no matter what the balance does in the meantime.
func (s *Service) StartTower(ctx context.Context, userID int64, req TowerStartRequest) (*TowerStartResponse, error) {
	cfg, err := games.TowerConfigFor(req.Difficulty)
	if err != nil {
		return nil, err
	}
	if req.BetAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: bet amount must be positive", games.ErrInvalidInput)
	}

	newBalance, err := s.db.EscrowBet(ctx, userID, games.GameDragonTower, req.BetAmount)
	if err != nil {
		return nil, err
	}

	seeds := s.newSeeds()
	if req.ClientSeed != "" {
		seeds.Client = req.ClientSeed
	}
	sess := store.TowerSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		Difficulty: req.Difficulty,
		BetAmount:  req.BetAmount,
		Level:      0,
		Multiplier: 1,
		Seeds:      seeds,
		NonceBase:  s.nonce(),
		Status:     store.TowerActive,
	}
	if err := s.db.CreateTowerSession(ctx, sess); err != nil {
		if _, refundErr := s.db.RefundBet(ctx, userID, games.GameDragonTower, req.BetAmount); refundErr != nil {
			s.log.Error("tower escrow refund failed",
				zap.Int64("user_id", userID),
				zap.String("bet", req.BetAmount.String()),
				zap.Error(refundErr),
			)
		}
		return nil, err
	}

	return &TowerStartResponse{
		TowerView:  s.towerView(sess, cfg),
		NewBalance: newBalance,
	}, nil
}

// TowerState returns the caller's view of an existing session.
func (s *Service) TowerState(ctx context.Context, userID int64, sessionID string) (*TowerView, error) {
	sess, err := s.db.GetTowerSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	cfg, err := games.TowerConfigFor(sess.Difficulty)
	if err != nil {
		return nil, err
	}
	view := s.towerView(sess, cfg)
	return &view, nil
}

// PickTile resolves one tile on the session's current floor. A safe pick
// advances the floor, finishing the tower when it was the last one; an
// unsafe pick busts the session and settles the stake as a loss. Either
// terminal path closes the session by compare-and-swap before touching the
// ledger, so two racing picks cannot both settle.
func (s *Service) PickTile(ctx context.Context, userID int64, sessionID string, tileIndex int) (*TowerPickResponse, error) {
	sess, err := s.db.GetTowerSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	// Terminated sessions take no further picks.
	if sess.Status != store.TowerActive {
		return nil, store.ErrSessionNotFound
	}
	cfg, err := games.TowerConfigFor(sess.Difficulty)
	if err != nil {
		return nil, err
	}

	safe, err := games.TowerTileSafe(sess.Seeds, sess.NonceBase, sess.Level, tileIndex, cfg)
	if err != nil {
		return nil, err
	}

	if !safe {
		return s.bustTower(ctx, sess, cfg, tileIndex)
	}

	sess.Level++
	sess.Multiplier = round2(sess.Multiplier * cfg.LevelMultiplier())

	if sess.Level == cfg.Levels {
		return s.finishTower(ctx, sess, cfg, tileIndex, store.TowerCompleted)
	}

	if err := s.db.AdvanceTowerSession(ctx, sess.ID, sess.Revision, sess.Level, sess.Multiplier); err != nil {
		return nil, err
	}
	sess.Revision++

	return &TowerPickResponse{
		TowerView: s.towerView(sess, cfg),
		TileIndex: tileIndex,
		Safe:      true,
	}, nil
}

// CollectTower cashes out an active session at its accumulated multiplier.
// At least one cleared floor is required.
func (s *Service) CollectTower(ctx context.Context, userID int64, sessionID string) (*TowerCollectResponse, error) {
	sess, err := s.db.GetTowerSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != store.TowerActive {
		return nil, store.ErrSessionNotFound
	}
	cfg, err := games.TowerConfigFor(sess.Difficulty)
	if err != nil {
		return nil, err
	}
	if sess.Level < 1 {
		return nil, fmt.Errorf("%w: nothing to collect before the first floor", games.ErrInvalidInput)
	}

	if err := s.db.CloseTowerSession(ctx, sess.ID, sess.Revision, store.TowerCollected); err != nil {
		return nil, err
	}
	sess.Status = store.TowerCollected

	payout := sess.BetAmount.Mul(decimal.NewFromFloat(sess.Multiplier)).Round(2)
	triple := engine.Triple{Seeds: sess.Seeds, Nonce: sess.NonceBase}
	newBalance, err := s.db.SettleEscrowed(ctx, store.Settlement{
		UserID:    sess.UserID,
		Game:      games.GameDragonTower,
		BetAmount: sess.BetAmount,
		Payout:    payout,
		GameData: map[string]any{
			"difficulty": sess.Difficulty,
			"level":      sess.Level,
			"multiplier": sess.Multiplier,
			"collected":  true,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	return &TowerCollectResponse{
		TowerView:    s.towerView(sess, cfg),
		Payout:       payout,
		NewBalance:   newBalance,
		ProvablyFair: fairOf(triple),
	}, nil
}

func (s *Service) bustTower(ctx context.Context, sess store.TowerSession, cfg games.TowerConfig, tileIndex int) (*TowerPickResponse, error) {
	if err := s.db.CloseTowerSession(ctx, sess.ID, sess.Revision, store.TowerBusted); err != nil {
		return nil, err
	}
	sess.Status = store.TowerBusted

	safeTiles, err := games.TowerSafeTiles(sess.Seeds, sess.NonceBase, sess.Level, cfg)
	if err != nil {
		return nil, err
	}

	triple := engine.Triple{Seeds: sess.Seeds, Nonce: sess.NonceBase}
	payout := decimal.Zero
	newBalance, err := s.db.SettleEscrowed(ctx, store.Settlement{
		UserID:    sess.UserID,
		Game:      games.GameDragonTower,
		BetAmount: sess.BetAmount,
		Payout:    payout,
		GameData: map[string]any{
			"difficulty":  sess.Difficulty,
			"bustedLevel": sess.Level,
			"tileIndex":   tileIndex,
			"safeTiles":   safeTiles,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	fair := fairOf(triple)
	return &TowerPickResponse{
		TowerView:    s.towerView(sess, cfg),
		TileIndex:    tileIndex,
		Safe:         false,
		SafeTiles:    safeTiles,
		Payout:       &payout,
		NewBalance:   &newBalance,
		ProvablyFair: &fair,
	}, nil
}

func (s *Service) finishTower(ctx context.Context, sess store.TowerSession, cfg games.TowerConfig, tileIndex int, status store.TowerSessionStatus) (*TowerPickResponse, error) {
	if err := s.db.CloseTowerSession(ctx, sess.ID, sess.Revision, status); err != nil {
		return nil, err
	}
	sess.Status = status

	payout := sess.BetAmount.Mul(decimal.NewFromFloat(sess.Multiplier)).Round(2)
	triple := engine.Triple{Seeds: sess.Seeds, Nonce: sess.NonceBase}
	newBalance, err := s.db.SettleEscrowed(ctx, store.Settlement{
		UserID:    sess.UserID,
		Game:      games.GameDragonTower,
		BetAmount: sess.BetAmount,
		Payout:    payout,
		GameData: map[string]any{
			"difficulty": sess.Difficulty,
			"level":      sess.Level,
			"multiplier": sess.Multiplier,
			"completed":  true,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	fair := fairOf(triple)
	return &TowerPickResponse{
		TowerView:    s.towerView(sess, cfg),
		TileIndex:    tileIndex,
		Safe:         true,
		Payout:       &payout,
		NewBalance:   &newBalance,
		ProvablyFair: &fair,
	}, nil
}
