package service

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/games"
	"github.com/luckforge/casino-core/internal/store"
)

// DiceRequest is one dice wager.
type DiceRequest struct {
	BetAmount  decimal.Decimal `json:"betAmount"`
	Target     float64         `json:"target"`
	RollOver   bool            `json:"rollOver"`
	ClientSeed string          `json:"clientSeed,omitempty"`
}

// DiceResponse is the settled dice outcome.
type DiceResponse struct {
	BetAmount    decimal.Decimal `json:"betAmount"`
	Target       float64         `json:"target"`
	RollOver     bool            `json:"rollOver"`
	Roll         float64         `json:"roll"`
	Won          bool            `json:"won"`
	WinChance    float64         `json:"winChance"`
	Multiplier   float64         `json:"multiplier"`
	Payout       decimal.Decimal `json:"payout"`
	Profit       decimal.Decimal `json:"profit"`
	NewBalance   decimal.Decimal `json:"newBalance"`
	ProvablyFair ProvablyFair    `json:"provablyFair"`
}

// PlayDice runs one dice wager end to end.
func (s *Service) PlayDice(ctx context.Context, userID int64, req DiceRequest) (*DiceResponse, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	triple := s.tripleFor(req.ClientSeed)
	res, err := games.PlayDice(triple, games.DiceParams{Target: req.Target, RollOver: req.RollOver}, req.BetAmount, user.Balance)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.db.Settle(ctx, store.Settlement{
		UserID:    userID,
		Game:      games.GameDice,
		BetAmount: req.BetAmount,
		Payout:    res.Payout,
		GameData: map[string]any{
			"target":     req.Target,
			"rollOver":   req.RollOver,
			"result":     res.Roll,
			"winChance":  round2(res.WinChance * 100),
			"multiplier": res.Multiplier,
			"won":        res.Won,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	return &DiceResponse{
		BetAmount:    req.BetAmount,
		Target:       req.Target,
		RollOver:     req.RollOver,
		Roll:         res.Roll,
		Won:          res.Won,
		WinChance:    res.WinChance,
		Multiplier:   res.Multiplier,
		Payout:       res.Payout,
		Profit:       res.Payout.Sub(req.BetAmount),
		NewBalance:   newBalance,
		ProvablyFair: fairOf(triple),
	}, nil
}

// LimboRequest is one limbo wager.
type LimboRequest struct {
	BetAmount        decimal.Decimal `json:"betAmount"`
	TargetMultiplier float64         `json:"targetMultiplier"`
	ClientSeed       string          `json:"clientSeed,omitempty"`
}

// LimboResponse is the settled limbo outcome.
type LimboResponse struct {
	BetAmount        decimal.Decimal `json:"betAmount"`
	TargetMultiplier float64         `json:"targetMultiplier"`
	Outcome          float64         `json:"outcomeMultiplier"`
	Won              bool            `json:"won"`
	Payout           decimal.Decimal `json:"payout"`
	Profit           decimal.Decimal `json:"profit"`
	NewBalance       decimal.Decimal `json:"newBalance"`
	ProvablyFair     ProvablyFair    `json:"provablyFair"`
}

// PlayLimbo runs one limbo wager end to end.
func (s *Service) PlayLimbo(ctx context.Context, userID int64, req LimboRequest) (*LimboResponse, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	triple := s.tripleFor(req.ClientSeed)
	res, err := games.PlayLimbo(triple, games.LimboParams{TargetMultiplier: req.TargetMultiplier}, req.BetAmount, user.Balance)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.db.Settle(ctx, store.Settlement{
		UserID:    userID,
		Game:      games.GameLimbo,
		BetAmount: req.BetAmount,
		Payout:    res.Payout,
		GameData: map[string]any{
			"targetMultiplier":  req.TargetMultiplier,
			"outcomeMultiplier": round2(res.Outcome),
			"won":               res.Won,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	return &LimboResponse{
		BetAmount:        req.BetAmount,
		TargetMultiplier: req.TargetMultiplier,
		Outcome:          res.Outcome,
		Won:              res.Won,
		Payout:           res.Payout,
		Profit:           res.Payout.Sub(req.BetAmount),
		NewBalance:       newBalance,
		ProvablyFair:     fairOf(triple),
	}, nil
}

// KenoRequest is one keno wager.
type KenoRequest struct {
	BetAmount     decimal.Decimal `json:"betAmount"`
	PickedNumbers []int           `json:"pickedNumbers"`
	ClientSeed    string          `json:"clientSeed,omitempty"`
}

// KenoResponse is the settled keno outcome.
type KenoResponse struct {
	BetAmount     decimal.Decimal `json:"betAmount"`
	PickedNumbers []int           `json:"pickedNumbers"`
	DrawnNumbers  []int           `json:"drawnNumbers"`
	Matches       int             `json:"matches"`
	Multiplier    float64         `json:"multiplier"`
	Payout        decimal.Decimal `json:"payout"`
	Profit        decimal.Decimal `json:"profit"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	ProvablyFair  ProvablyFair    `json:"provablyFair"`
}

// PlayKeno runs one keno wager end to end.
func (s *Service) PlayKeno(ctx context.Context, userID int64, req KenoRequest) (*KenoResponse, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	triple := s.tripleFor(req.ClientSeed)
	res, err := games.PlayKeno(triple, games.KenoParams{Picked: req.PickedNumbers}, req.BetAmount, user.Balance)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.db.Settle(ctx, store.Settlement{
		UserID:    userID,
		Game:      games.GameKeno,
		BetAmount: req.BetAmount,
		Payout:    res.Payout,
		GameData: map[string]any{
			"pickedNumbers": req.PickedNumbers,
			"drawnNumbers":  res.Drawn,
			"matches":       res.Matches,
			"multiplier":    res.Multiplier,
		},
		Triple: triple,
	})
	if err != nil {
		return nil, err
	}

	return &KenoResponse{
		BetAmount:     req.BetAmount,
		PickedNumbers: req.PickedNumbers,
		DrawnNumbers:  res.Drawn,
		Matches:       res.Matches,
		Multiplier:    res.Multiplier,
		Payout:        res.Payout,
		Profit:        res.Payout.Sub(req.BetAmount),
		NewBalance:    newBalance,
		ProvablyFair:  fairOf(triple),
	}, nil
}

func round2(f float64) float64 {
	return math.Floor(f*100+0.5) / 100
}
