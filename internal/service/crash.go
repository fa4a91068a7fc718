package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/crash"
	"github.com/luckforge/casino-core/internal/games"
	"github.com/luckforge/casino-core/internal/store"
)

const crashMinCashOut = 1.01

// CurrentRound returns the live crash round, starting one if needed. The
// view carries the server-seed commitment, never the seed or crash point.
func (s *Service) CurrentRound(ctx context.Context) crash.RoundView {
	return s.crash.CurrentRound()
}

// PlaceCrashBet stakes the user on the current round. The stake is debited
// into escrow before the position opens, so a later cash-out or loss
// settlement never depends on the balance still covering it. Replacing an
// open position in the same round refunds the earlier stake.
func (s *Service) PlaceCrashBet(ctx context.Context, userID int64, betAmount decimal.Decimal) (crash.RoundView, error) {
	if betAmount.LessThanOrEqual(decimal.Zero) {
		return crash.RoundView{}, fmt.Errorf("%w: bet amount must be positive", games.ErrInvalidInput)
	}

	if _, err := s.db.EscrowBet(ctx, userID, games.GameCrash, betAmount); err != nil {
		return crash.RoundView{}, err
	}

	view, replaced, err := s.crash.PlaceBet(userID, betAmount)
	if err != nil {
		if _, refundErr := s.db.RefundBet(ctx, userID, games.GameCrash, betAmount); refundErr != nil {
			s.log.Error("crash escrow refund failed",
				zap.Int64("user_id", userID),
				zap.String("bet", betAmount.String()),
				zap.Error(refundErr),
			)
		}
		return crash.RoundView{}, err
	}
	if replaced != nil {
		if _, err := s.db.RefundBet(ctx, userID, games.GameCrash, replaced.Amount); err != nil {
			s.log.Error("crash replaced-bet refund failed",
				zap.Int64("user_id", userID),
				zap.String("bet", replaced.Amount.String()),
				zap.Error(err),
			)
		}
	}
	return view, nil
}

// CrashCashOutResponse is a settled crash win.
type CrashCashOutResponse struct {
	BetAmount    decimal.Decimal `json:"betAmount"`
	Multiplier   float64         `json:"cashOutMultiplier"`
	CrashPoint   float64         `json:"crashPoint"`
	Payout       decimal.Decimal `json:"payout"`
	Profit       decimal.Decimal `json:"profit"`
	NewBalance   decimal.Decimal `json:"newBalance"`
	ProvablyFair ProvablyFair    `json:"provablyFair"`
}

// CrashCashOut closes the user's position at the given multiplier and
// settles the win. The manager re-checks round staleness under its lock, so
// a cash-out can never succeed against a round that already crashed.
func (s *Service) CrashCashOut(ctx context.Context, userID int64, multiplier float64) (*CrashCashOutResponse, error) {
	if multiplier < crashMinCashOut {
		return nil, fmt.Errorf("%w: cash-out multiplier must be at least %.2f", games.ErrInvalidInput, crashMinCashOut)
	}

	res, err := s.crash.CashOut(userID, multiplier)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.db.SettleEscrowed(ctx, store.Settlement{
		UserID:    userID,
		Game:      games.GameCrash,
		BetAmount: res.BetAmount,
		Payout:    res.Payout,
		GameData: map[string]any{
			"crashPoint":  res.CrashPoint,
			"cashedOutAt": res.Multiplier,
			"won":         true,
		},
		Triple: res.Triple,
	})
	if err != nil {
		return nil, err
	}

	return &CrashCashOutResponse{
		BetAmount:    res.BetAmount,
		Multiplier:   res.Multiplier,
		CrashPoint:   res.CrashPoint,
		Payout:       res.Payout,
		Profit:       res.Payout.Sub(res.BetAmount),
		NewBalance:   newBalance,
		ProvablyFair: fairOf(res.Triple),
	}, nil
}

// settleCrashedBets records every position still open when a round crashes
// as a loss. The manager invokes it after releasing its lock, so the
// per-position transactions here never stall concurrent round traffic. The
// stakes were escrowed at join, so each settlement is a pure record write
// that cannot fail for lack of funds.
func (s *Service) settleCrashedBets(round crash.Round, lost map[int64]crash.Bet) {
	ctx := context.Background()
	for userID, bet := range lost {
		_, err := s.db.SettleEscrowed(ctx, store.Settlement{
			UserID:    userID,
			Game:      games.GameCrash,
			BetAmount: bet.Amount,
			Payout:    decimal.Zero,
			GameData: map[string]any{
				"crashPoint": round.CrashPoint,
				"won":        false,
			},
			Triple: round.Triple,
		})
		if err != nil {
			s.log.Warn("crash loss settlement failed",
				zap.Int64("user_id", userID),
				zap.String("bet", bet.Amount.String()),
				zap.Error(err),
			)
		}
	}
}
