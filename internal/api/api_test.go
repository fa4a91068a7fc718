package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/engine"
	"github.com/luckforge/casino-core/internal/service"
	"github.com/luckforge/casino-core/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	return NewServer(service.New(db, zap.NewNop()), zap.NewNop(), 30*time.Second)
}

func doJSON(t *testing.T, h http.Handler, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(userIDHeader, fmt.Sprint(userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, h http.Handler, balance string) store.User {
	t.Helper()

	w := doJSON(t, h, "POST", "/api/v1/users", 0, CreateUserRequest{
		Username: "player",
		Balance:  decimal.RequireFromString(balance),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user status = %d, body %s", w.Code, w.Body)
	}
	var u store.User
	if err := json.NewDecoder(w.Body).Decode(&u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "GET", "/health", 0, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestDiceEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()
	u := createUser(t, h, "100")

	w := doJSON(t, h, "POST", "/api/v1/games/dice", u.ID, service.DiceRequest{
		BetAmount: decimal.RequireFromString("10"),
		Target:    50,
		RollOver:  true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var res service.DiceResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Roll < 0 || res.Roll >= 100 {
		t.Errorf("roll = %v, outside [0,100)", res.Roll)
	}
	if res.ProvablyFair.ServerSeed == "" {
		t.Error("settled response must reveal the server seed")
	}

	// The outcome must reproduce from the revealed triple.
	wantBalance := decimal.RequireFromString("90")
	if res.Won {
		wantBalance = decimal.RequireFromString("90").Add(res.Payout)
	}
	if !res.NewBalance.Equal(wantBalance) {
		t.Errorf("NewBalance = %s, want %s", res.NewBalance, wantBalance)
	}
}

func TestDiceEndpointRejectsBadInput(t *testing.T) {
	h := newTestServer(t).Routes()
	u := createUser(t, h, "100")

	w := doJSON(t, h, "POST", "/api/v1/games/dice", u.ID, service.DiceRequest{
		BetAmount: decimal.RequireFromString("10"),
		Target:    250,
		RollOver:  true,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var e EngineError
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Type != ErrTypeInvalidParams {
		t.Errorf("error type = %q, want %q", e.Type, ErrTypeInvalidParams)
	}
}

func TestMissingUserHeader(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "POST", "/api/v1/games/dice", 0, service.DiceRequest{
		BetAmount: decimal.RequireFromString("10"),
		Target:    50,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUnknownUser(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "GET", "/api/v1/users/me", 9999, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var e EngineError
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Type != ErrTypeUserNotFound {
		t.Errorf("error type = %q", e.Type)
	}
}

func TestCrashRoundEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "GET", "/api/v1/crash/round", 0, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view map[string]any
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view["status"] != "active" {
		t.Errorf("status = %v, want active", view["status"])
	}
	if hash, _ := view["serverSeedHash"].(string); len(hash) != 64 {
		t.Errorf("serverSeedHash = %v, want a sha256 hex digest", view["serverSeedHash"])
	}
	if _, leaked := view["serverSeed"]; leaked {
		t.Error("active round must not reveal the server seed")
	}
}

func TestCrashBetEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()
	u := createUser(t, h, "100")

	w := doJSON(t, h, "POST", "/api/v1/crash/bet", u.ID, CrashBetRequest{
		BetAmount: decimal.RequireFromString("10"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	// Cashing out below the minimum multiplier is rejected up front.
	w = doJSON(t, h, "POST", "/api/v1/crash/cashout", u.ID, CrashCashOutRequest{Multiplier: 1.0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("cashout at 1.0 status = %d, want 400", w.Code)
	}
}

func TestTowerEndpoints(t *testing.T) {
	h := newTestServer(t).Routes()
	u := createUser(t, h, "100")

	w := doJSON(t, h, "POST", "/api/v1/tower/start", u.ID, service.TowerStartRequest{
		BetAmount:  decimal.RequireFromString("10"),
		Difficulty: "easy",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body)
	}
	var view service.TowerStartResponse
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.SessionID == "" || view.Level != 0 {
		t.Fatalf("fresh session view = %+v", view)
	}
	if !view.NewBalance.Equal(decimal.RequireFromString("90")) {
		t.Errorf("balance after start = %s, want 90", view.NewBalance)
	}

	// A second active session conflicts.
	w = doJSON(t, h, "POST", "/api/v1/tower/start", u.ID, service.TowerStartRequest{
		BetAmount:  decimal.RequireFromString("10"),
		Difficulty: "easy",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", w.Code)
	}

	w = doJSON(t, h, "GET", "/api/v1/tower/"+view.SessionID, u.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("state status = %d", w.Code)
	}

	// Picks either advance or settle; both are 200s with a coherent body.
	w = doJSON(t, h, "POST", "/api/v1/tower/pick", u.ID, TowerPickRequest{
		SessionID: view.SessionID,
		TileIndex: 0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("pick status = %d, body %s", w.Code, w.Body)
	}
	var pick service.TowerPickResponse
	if err := json.NewDecoder(w.Body).Decode(&pick); err != nil {
		t.Fatal(err)
	}
	if pick.Safe && pick.Level != 1 {
		t.Errorf("safe pick level = %d, want 1", pick.Level)
	}
	if !pick.Safe && pick.Status != store.TowerBusted {
		t.Errorf("unsafe pick status = %q, want busted", pick.Status)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "POST", "/api/v1/verify", 0, VerifyRequest{
		ServerSeed: "abc",
		ClientSeed: "def",
		Nonce:      3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res VerifyResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if want := engine.FairnessHash("abc", "def", 3); res.Hash != want {
		t.Errorf("hash = %q, want %q", res.Hash, want)
	}
}

func TestSeedHashEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	w := doJSON(t, h, "POST", "/api/v1/seed/hash", 0, SeedHashRequest{ServerSeed: "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res SeedHashResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if want := engine.HashSeed("secret"); res.Hash != want {
		t.Errorf("hash = %q, want %q", res.Hash, want)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()
	u := createUser(t, h, "100")

	doJSON(t, h, "POST", "/api/v1/games/dice", u.ID, service.DiceRequest{
		BetAmount: decimal.RequireFromString("5"),
		Target:    50,
		RollOver:  true,
	})

	w := doJSON(t, h, "GET", "/api/v1/history?limit=10", u.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var recs []store.GameRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("history length = %d, want 1", len(recs))
	}

	w = doJSON(t, h, "GET", "/api/v1/transactions", u.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", w.Code)
	}
}
