// Package service wires the outcome engines, the crash round manager, and
// the settlement ledger into the per-game entry points the HTTP layer
// exposes. Instant games resolve and settle in one step; session games
// (tower, crash) escrow the stake when the wager opens and settle
// credit-only at termination. Every outcome is deterministic from its seed
// triple and the response includes the triple for independent
// verification.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/crash"
	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/store"
)

// Service is the game core's public surface.
type Service struct {
	db    *store.DB
	crash *crash.Manager
	log   *zap.Logger

	// overridable in tests for deterministic outcomes
	newSeeds func() engine.Seeds
	nonce    func() uint64
}

// New builds a Service on top of an opened, migrated store.
func New(db *store.DB, log *zap.Logger) *Service {
	s := &Service{
		db:       db,
		log:      log,
		newSeeds: engine.NewSeeds,
		nonce:    func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	s.crash = crash.NewManager(log.Named("crash"), s.settleCrashedBets)
	return s
}

// ProvablyFair is the verification block attached to every settled outcome:
// the revealed server seed, the client seed, and the nonce. Recomputing the
// fairness hash from these must reproduce the recorded outcome.
type ProvablyFair struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

func fairOf(t engine.Triple) ProvablyFair {
	return ProvablyFair{ServerSeed: t.Server, ClientSeed: t.Client, Nonce: t.Nonce}
}

// tripleFor builds a fresh seed triple for one wager, honoring a
// player-supplied client seed when present.
func (s *Service) tripleFor(clientSeed string) engine.Triple {
	seeds := s.newSeeds()
	if clientSeed != "" {
		seeds.Client = clientSeed
	}
	return engine.Triple{Seeds: seeds, Nonce: s.nonce()}
}

// User returns the principal's current state.
func (s *Service) User(ctx context.Context, userID int64) (store.User, error) {
	return s.db.GetUser(ctx, userID)
}

// VerifyResult recomputes the fairness hash for a revealed triple, letting
// a player confirm a historical outcome was not altered after the fact.
func (s *Service) VerifyResult(serverSeed, clientSeed string, nonce uint64) string {
	return engine.FairnessHash(serverSeed, clientSeed, nonce)
}

// History lists the user's settled outcomes, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]store.GameRecord, error) {
	return s.db.UserGameHistory(ctx, userID, limit, offset)
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]store.Transaction, error) {
	return s.db.UserTransactions(ctx, userID, limit)
}

// CreateUser registers a principal with an opening balance. Kept narrow:
// account management beyond this belongs to the outer platform.
func (s *Service) CreateUser(ctx context.Context, username string, balance decimal.Decimal) (store.User, error) {
	return s.db.CreateUser(ctx, username, balance)
}
