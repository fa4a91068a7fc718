package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/crash"
	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/games"
	"github.com/luckforge/casino-core/internal/store"
)

// newTestService builds a Service over an in-memory store with the seed and
// nonce sources pinned, so every outcome below is a fixed vector.
func newTestService(t *testing.T, nonce uint64) *Service {
	t.Helper()

	db, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	s := New(db, zap.NewNop())
	s.newSeeds = func() engine.Seeds {
		return engine.Seeds{Server: "server-seed-golden", Client: "client-seed-golden"}
	}
	s.nonce = func() uint64 { return nonce }
	return s
}

func newPlayer(t *testing.T, s *Service, balance string) store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "player", dec(t, balance))
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	return u
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", v, err)
	}
	return d
}

func TestPlayDiceSettles(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0) // nonce 0 rolls 84.10
	u := newPlayer(t, s, "100")

	res, err := s.PlayDice(ctx, u.ID, DiceRequest{
		BetAmount: dec(t, "10"),
		Target:    50,
		RollOver:  true,
	})
	if err != nil {
		t.Fatalf("PlayDice() error: %v", err)
	}
	if !res.Won {
		t.Fatalf("expected win, roll %.2f", res.Roll)
	}
	if !res.Payout.Equal(dec(t, "19.8")) {
		t.Errorf("Payout = %s, want 19.8", res.Payout)
	}
	if !res.NewBalance.Equal(dec(t, "109.8")) {
		t.Errorf("NewBalance = %s, want 109.8", res.NewBalance)
	}
	if res.ProvablyFair.ServerSeed != "server-seed-golden" {
		t.Errorf("settled response must reveal the server seed, got %q", res.ProvablyFair.ServerSeed)
	}

	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(res.NewBalance) {
		t.Errorf("stored balance %s != response balance %s", user.Balance, res.NewBalance)
	}

	hist, err := s.History(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	rec := hist[0]
	if rec.GameType != games.GameDice || rec.ServerSeed != "server-seed-golden" || rec.Nonce != 0 {
		t.Errorf("record = %+v, want dice with golden triple", rec)
	}

	txns, err := s.Transactions(ctx, u.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want bet and win", len(txns))
	}
}

func TestPlayDiceClientSeedHonored(t *testing.T) {
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	res, err := s.PlayDice(context.Background(), u.ID, DiceRequest{
		BetAmount:  dec(t, "1"),
		Target:     50,
		RollOver:   true,
		ClientSeed: "my-own-seed",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ProvablyFair.ClientSeed != "my-own-seed" {
		t.Errorf("client seed = %q, want the one the player supplied", res.ProvablyFair.ClientSeed)
	}
	if got := engine.FairnessHash(res.ProvablyFair.ServerSeed, res.ProvablyFair.ClientSeed, res.ProvablyFair.Nonce); got == "" {
		t.Error("triple must be verifiable")
	}
}

func TestPlayLimboSettles(t *testing.T) {
	s := newTestService(t, 16) // nonce 16 derives outcome ~1.6953
	u := newPlayer(t, s, "100")

	res, err := s.PlayLimbo(context.Background(), u.ID, LimboRequest{
		BetAmount:        dec(t, "10"),
		TargetMultiplier: 1.5,
	})
	if err != nil {
		t.Fatalf("PlayLimbo() error: %v", err)
	}
	if !res.Won || !res.Payout.Equal(dec(t, "14.85")) {
		t.Errorf("won=%v payout=%s, want win paying 14.85", res.Won, res.Payout)
	}
	if !res.NewBalance.Equal(dec(t, "104.85")) {
		t.Errorf("NewBalance = %s, want 104.85", res.NewBalance)
	}
}

func TestPlayKenoSettles(t *testing.T) {
	s := newTestService(t, 253) // nonce 253 matches 6 of picks 1-10
	u := newPlayer(t, s, "100")

	res, err := s.PlayKeno(context.Background(), u.ID, KenoRequest{
		BetAmount:     dec(t, "10"),
		PickedNumbers: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})
	if err != nil {
		t.Fatalf("PlayKeno() error: %v", err)
	}
	if res.Matches != 6 || !res.Payout.Equal(dec(t, "100")) {
		t.Errorf("matches=%d payout=%s, want 6 paying 100", res.Matches, res.Payout)
	}
	if !res.NewBalance.Equal(dec(t, "190")) {
		t.Errorf("NewBalance = %s, want 190", res.NewBalance)
	}
}

func TestPlayRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "5")

	_, err := s.PlayDice(ctx, u.ID, DiceRequest{BetAmount: dec(t, "10"), Target: 50, RollOver: true})
	if !errors.Is(err, games.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(dec(t, "5")) {
		t.Errorf("balance = %s, want untouched 5", user.Balance)
	}
	hist, err := s.History(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Errorf("rejected wager must leave no record, got %d", len(hist))
	}
}

func TestPlaceCrashBetValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "50")

	if _, err := s.PlaceCrashBet(ctx, u.ID, dec(t, "0")); !errors.Is(err, games.ErrInvalidInput) {
		t.Errorf("zero bet error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.PlaceCrashBet(ctx, u.ID, dec(t, "51")); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("overdraw error = %v, want ErrInsufficientBalance", err)
	}

	view, err := s.PlaceCrashBet(ctx, u.ID, dec(t, "10"))
	if err != nil {
		t.Fatalf("PlaceCrashBet() error: %v", err)
	}
	if view.Status != crash.StatusActive {
		t.Errorf("round status = %q, want active", view.Status)
	}
	if len(view.ServerSeedHash) != 64 {
		t.Errorf("view must carry the seed commitment, got %q", view.ServerSeedHash)
	}

	// The stake leaves the balance the moment the position opens.
	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(dec(t, "40")) {
		t.Errorf("balance after join = %s, want 40", user.Balance)
	}
}

func TestPlaceCrashBetReplaceRefundsPriorStake(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	if _, err := s.PlaceCrashBet(ctx, u.ID, dec(t, "10")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceCrashBet(ctx, u.ID, dec(t, "15")); err != nil {
		t.Fatal(err)
	}

	// Only the replacing stake stays escrowed: 100 - 15.
	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(dec(t, "85")) {
		t.Errorf("balance after replacement = %s, want 85", user.Balance)
	}
}

func TestCrashCashOutValidation(t *testing.T) {
	s := newTestService(t, 0)
	u := newPlayer(t, s, "50")

	if _, err := s.CrashCashOut(context.Background(), u.ID, 1.0); !errors.Is(err, games.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput for multiplier below 1.01", err)
	}
}

func TestSettleCrashedBetsRecordsEscrowedLosses(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")
	broke, err := s.CreateUser(ctx, "broke", dec(t, "10"))
	if err != nil {
		t.Fatal(err)
	}

	// Both stakes were escrowed at join; broke's balance hit zero doing so.
	if _, err := s.db.EscrowBet(ctx, u.ID, games.GameCrash, dec(t, "10")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.EscrowBet(ctx, broke.ID, games.GameCrash, dec(t, "10")); err != nil {
		t.Fatal(err)
	}

	round := crash.Round{
		CrashPoint: 1.5,
		Triple: engine.Triple{
			Seeds: engine.Seeds{Server: "server-seed-golden", Client: "client-seed-golden"},
			Nonce: 42,
		},
		Status: crash.StatusCrashed,
	}
	s.settleCrashedBets(round, map[int64]crash.Bet{
		u.ID:     {Amount: dec(t, "10")},
		broke.ID: {Amount: dec(t, "10")},
	})

	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(dec(t, "90")) {
		t.Errorf("loser balance = %s, want 90", user.Balance)
	}
	hist, err := s.History(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].GameType != games.GameCrash || !hist[0].Payout.IsZero() {
		t.Fatalf("expected one zero-payout crash record, got %+v", hist)
	}

	// A loser at zero balance still gets its outcome recorded; the stake was
	// already taken at join, so nothing more leaves the balance.
	unlucky, err := s.User(ctx, broke.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !unlucky.Balance.IsZero() {
		t.Errorf("zero-balance loser balance = %s, want 0", unlucky.Balance)
	}
	brokeHist, err := s.History(ctx, broke.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(brokeHist) != 1 || !brokeHist[0].Payout.IsZero() {
		t.Fatalf("expected a recorded loss for the zero-balance user, got %+v", brokeHist)
	}
}

// Golden seeds, nonce base 0, easy tower: the unsafe tiles per floor are
// 3, 1, 0, 1, 0, so the complement path below clears all five.
func TestTowerFullClimb(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	view, err := s.StartTower(ctx, u.ID, TowerStartRequest{
		BetAmount:  dec(t, "10"),
		Difficulty: games.TowerEasy,
	})
	if err != nil {
		t.Fatalf("StartTower() error: %v", err)
	}
	if view.Level != 0 || view.Multiplier != 1 || view.Status != store.TowerActive {
		t.Fatalf("fresh session = %+v", view)
	}
	if view.ServerSeedHash != engine.HashSeed("server-seed-golden") {
		t.Errorf("view must commit to the server seed")
	}
	if !view.NewBalance.Equal(dec(t, "90")) {
		t.Errorf("balance after start = %s, want 90 with the stake escrowed", view.NewBalance)
	}

	path := []int{0, 0, 1, 0, 1}
	wantMult := []float64{1.32, 1.74, 2.30, 3.04, 4.01}

	var last *TowerPickResponse
	for i, tile := range path {
		last, err = s.PickTile(ctx, u.ID, view.SessionID, tile)
		if err != nil {
			t.Fatalf("PickTile(level %d) error: %v", i, err)
		}
		if !last.Safe {
			t.Fatalf("level %d tile %d should be safe", i, tile)
		}
		if last.Level != i+1 {
			t.Errorf("level = %d, want %d", last.Level, i+1)
		}
		if last.Multiplier != wantMult[i] {
			t.Errorf("multiplier after level %d = %v, want %v", i+1, last.Multiplier, wantMult[i])
		}
	}

	if last.Status != store.TowerCompleted {
		t.Errorf("final status = %q, want completed", last.Status)
	}
	if last.Payout == nil || !last.Payout.Equal(dec(t, "40.1")) {
		t.Errorf("payout = %v, want 40.1", last.Payout)
	}
	if last.NewBalance == nil || !last.NewBalance.Equal(dec(t, "130.1")) {
		t.Errorf("balance = %v, want 130.1", last.NewBalance)
	}
	if last.ProvablyFair == nil || last.ProvablyFair.ServerSeed != "server-seed-golden" {
		t.Errorf("terminal pick must reveal the server seed")
	}

	// The slot frees up once terminal.
	if _, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "1"), Difficulty: games.TowerEasy}); err != nil {
		t.Errorf("new session after completion: %v", err)
	}
}

func TestTowerBustSettlesLoss(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	view, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.PickTile(ctx, u.ID, view.SessionID, 3) // floor 0 trap
	if err != nil {
		t.Fatalf("PickTile() error: %v", err)
	}
	if res.Safe {
		t.Fatal("tile 3 on floor 0 should bust")
	}
	if res.Status != store.TowerBusted {
		t.Errorf("status = %q, want busted", res.Status)
	}
	safe := map[int]bool{}
	for _, tile := range res.SafeTiles {
		safe[tile] = true
	}
	if len(safe) != 3 || !safe[0] || !safe[1] || !safe[2] {
		t.Errorf("revealed safe tiles = %v, want {0,1,2}", res.SafeTiles)
	}
	if res.NewBalance == nil || !res.NewBalance.Equal(dec(t, "90")) {
		t.Errorf("balance = %v, want 90 after losing the stake", res.NewBalance)
	}

	// The busted session rejects further picks.
	if _, err := s.PickTile(ctx, u.ID, view.SessionID, 0); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("pick on busted session error = %v, want ErrSessionNotFound", err)
	}
}

func TestTowerCollect(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	view, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CollectTower(ctx, u.ID, view.SessionID); !errors.Is(err, games.ErrInvalidInput) {
		t.Fatalf("collect before any floor error = %v, want ErrInvalidInput", err)
	}

	for _, tile := range []int{0, 0} {
		if _, err := s.PickTile(ctx, u.ID, view.SessionID, tile); err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.CollectTower(ctx, u.ID, view.SessionID)
	if err != nil {
		t.Fatalf("CollectTower() error: %v", err)
	}
	if res.Status != store.TowerCollected {
		t.Errorf("status = %q, want collected", res.Status)
	}
	if !res.Payout.Equal(dec(t, "17.4")) {
		t.Errorf("payout = %s, want 17.4 at 1.74x", res.Payout)
	}
	if !res.NewBalance.Equal(dec(t, "107.4")) {
		t.Errorf("balance = %s, want 107.4", res.NewBalance)
	}
}

func TestTowerCollectAfterBalanceSpent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "100")

	view, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy})
	if err != nil {
		t.Fatal(err)
	}

	// Burn the rest of the balance on a losing dice roll (nonce 1 rolls
	// 10.92, under the over-50 target) while the tower is mid-climb.
	s.nonce = func() uint64 { return 1 }
	dice, err := s.PlayDice(ctx, u.ID, DiceRequest{BetAmount: dec(t, "90"), Target: 50, RollOver: true})
	if err != nil {
		t.Fatal(err)
	}
	if dice.Won || !dice.NewBalance.IsZero() {
		t.Fatalf("dice roll %.2f won=%v balance=%s, want a wipe-out loss", dice.Roll, dice.Won, dice.NewBalance)
	}

	for _, tile := range []int{0, 0} {
		if _, err := s.PickTile(ctx, u.ID, view.SessionID, tile); err != nil {
			t.Fatal(err)
		}
	}

	// The stake was escrowed at start, so collecting stays payable on an
	// otherwise empty balance.
	res, err := s.CollectTower(ctx, u.ID, view.SessionID)
	if err != nil {
		t.Fatalf("CollectTower() error: %v", err)
	}
	if res.Status != store.TowerCollected {
		t.Errorf("status = %q, want collected", res.Status)
	}
	if !res.Payout.Equal(dec(t, "17.4")) {
		t.Errorf("payout = %s, want 17.4", res.Payout)
	}
	if !res.NewBalance.Equal(dec(t, "17.4")) {
		t.Errorf("balance = %s, want 17.4", res.NewBalance)
	}

	hist, err := s.History(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want dice loss and tower collect", len(hist))
	}
}

func TestTowerStartValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	u := newPlayer(t, s, "20")

	if _, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: "impossible"}); !errors.Is(err, games.ErrInvalidInput) {
		t.Errorf("unknown difficulty error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "21"), Difficulty: games.TowerEasy}); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("overdraw error = %v, want ErrInsufficientBalance", err)
	}

	if _, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy}); err != nil {
		t.Fatal(err)
	}
	// One active tower per user.
	if _, err := s.StartTower(ctx, u.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy}); !errors.Is(err, store.ErrSessionExists) {
		t.Errorf("second session error = %v, want ErrSessionExists", err)
	}

	// The rejected start refunds its escrowed stake.
	user, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Balance.Equal(dec(t, "10")) {
		t.Errorf("balance after rejected second start = %s, want 10", user.Balance)
	}
}

func TestTowerOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	owner := newPlayer(t, s, "100")
	other, err := s.CreateUser(ctx, "other", dec(t, "100"))
	if err != nil {
		t.Fatal(err)
	}

	view, err := s.StartTower(ctx, owner.ID, TowerStartRequest{BetAmount: dec(t, "10"), Difficulty: games.TowerEasy})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PickTile(ctx, other.ID, view.SessionID, 0); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("foreign pick error = %v, want ErrSessionNotFound", err)
	}
}

func TestVerifyResultMatchesEngine(t *testing.T) {
	s := newTestService(t, 0)
	want := engine.FairnessHash("a", "b", 7)
	if got := s.VerifyResult("a", "b", 7); got != want {
		t.Errorf("VerifyResult = %q, want %q", got, want)
	}
}
