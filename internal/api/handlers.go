package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/service"
)

// CreateUserRequest registers a principal with an opening balance.
type CreateUserRequest struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "username must not be empty")
		return
	}
	if req.Balance.IsNegative() {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "balance must not be negative")
		return
	}

	user, err := s.svc.CreateUser(r.Context(), req.Username, req.Balance)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	user, err := s.svc.User(r.Context(), userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDice(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req service.DiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.PlayDice(r.Context(), userID, req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLimbo(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req service.LimboRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.PlayLimbo(r.Context(), userID, req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleKeno(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req service.KenoRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.PlayKeno(r.Context(), userID, req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCrashRound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.CurrentRound(r.Context()))
}

// CrashBetRequest stakes the caller on the current crash round.
type CrashBetRequest struct {
	BetAmount decimal.Decimal `json:"betAmount"`
}

func (s *Server) handleCrashBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req CrashBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.svc.PlaceCrashBet(r.Context(), userID, req.BetAmount)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// CrashCashOutRequest claims the caller's position at a multiplier.
type CrashCashOutRequest struct {
	Multiplier float64 `json:"multiplier"`
}

func (s *Server) handleCrashCashOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req CrashCashOutRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.CrashCashOut(r.Context(), userID, req.Multiplier)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTowerStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req service.TowerStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.svc.StartTower(r.Context(), userID, req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

// TowerPickRequest resolves one tile on the session's current floor.
type TowerPickRequest struct {
	SessionID string `json:"sessionId"`
	TileIndex int    `json:"tileIndex"`
}

func (s *Server) handleTowerPick(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req TowerPickRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.PickTile(r.Context(), userID, req.SessionID, req.TileIndex)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// TowerCollectRequest cashes a session out at its accumulated multiplier.
type TowerCollectRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleTowerCollect(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req TowerCollectRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.CollectTower(r.Context(), userID, req.SessionID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTowerState(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.TowerState(r.Context(), userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// VerifyRequest recomputes the fairness hash for a revealed triple.
type VerifyRequest struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

// VerifyResponse echoes the triple with its fairness hash.
type VerifyResponse struct {
	VerifyRequest
	Hash string `json:"hash"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ServerSeed == "" || req.ClientSeed == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "serverSeed and clientSeed must not be empty")
		return
	}
	s.writeJSON(w, http.StatusOK, VerifyResponse{
		VerifyRequest: req,
		Hash:          s.svc.VerifyResult(req.ServerSeed, req.ClientSeed, req.Nonce),
	})
}

// SeedHashRequest asks for the public commitment of a server seed.
type SeedHashRequest struct {
	ServerSeed string `json:"serverSeed"`
}

// SeedHashResponse carries the commitment.
type SeedHashResponse struct {
	Hash string `json:"hash"`
}

func (s *Server) handleSeedHash(w http.ResponseWriter, r *http.Request) {
	var req SeedHashRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ServerSeed == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "serverSeed must not be empty")
		return
	}
	s.writeJSON(w, http.StatusOK, SeedHashResponse{Hash: engine.HashSeed(req.ServerSeed)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50, 1, 200)
	offset := queryInt(r, "offset", 0, 0, 1<<20)

	recs, err := s.svc.History(r.Context(), userID, limit, offset)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50, 1, 200)

	txns, err := s.svc.Transactions(r.Context(), userID, limit)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txns)
}

// queryInt parses an integer query parameter, clamped to [min, max], falling
// back to def when absent or malformed.
func queryInt(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
