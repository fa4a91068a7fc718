// Package api exposes the game core over HTTP. The outer platform fronts
// this service and is trusted to authenticate players; the principal arrives
// as the X-User-ID header.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/luckforge/casino-core/internal/service"
)

const userIDHeader = "X-User-ID"

// Server handles HTTP requests.
type Server struct {
	svc     *service.Service
	log     *zap.Logger
	timeout time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *service.Service, log *zap.Logger, timeout time.Duration) *Server {
	return &Server{svc: svc, log: log, timeout: timeout}
}

// Routes sets up the HTTP routes with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/me", s.handleCurrentUser)

		r.Post("/games/dice", s.handleDice)
		r.Post("/games/limbo", s.handleLimbo)
		r.Post("/games/keno", s.handleKeno)

		r.Get("/crash/round", s.handleCrashRound)
		r.Post("/crash/bet", s.handleCrashBet)
		r.Post("/crash/cashout", s.handleCrashCashOut)

		r.Post("/tower/start", s.handleTowerStart)
		r.Post("/tower/pick", s.handleTowerPick)
		r.Post("/tower/collect", s.handleTowerCollect)
		r.Get("/tower/{sessionID}", s.handleTowerState)

		r.Post("/verify", s.handleVerify)
		r.Post("/seed/hash", s.handleSeedHash)

		r.Get("/history", s.handleHistory)
		r.Get("/transactions", s.handleTransactions)
	})

	return r
}

// userID extracts the authenticated principal from the request. A missing
// or malformed header is a client error, not an auth failure; auth itself
// happened upstream.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "missing "+userIDHeader+" header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "malformed "+userIDHeader+" header")
		return 0, false
	}
	return id, true
}

// decode parses a JSON request body into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeInvalidParams, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with proper headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("response encoding failed", zap.Error(err))
	}
}

// serviceError maps a service-layer error to its HTTP response and logs the
// internal ones.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType, public := classify(err)
	msg := err.Error()
	if !public {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	s.writeError(w, r, status, errType, msg)
}

// writeError writes a structured error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	s.writeJSON(w, status, EngineError{
		Type:      errType,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
