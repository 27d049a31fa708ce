package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
)

type server struct {
	manager  *goSession.Manager
	verifier IdentityVerifier
	logger   *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *server) routes(trustForwarded bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("GET /auth/me", middleware.Guard(s.manager)(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /metrics", prometheus.NewCollector(s.manager).Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return middleware.RequestMeta(trustForwarded)(mux)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := s.verifier.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := s.manager.GenerateTokenPair(r.Context(), identity)
	if err != nil {
		s.writeManagerError(w, "login", err)
		return
	}
	middleware.SetTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenBody(pair))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.RefreshToken(r)
	if !ok {
		var req refreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		token = req.RefreshToken
	}

	pair, err := s.manager.RefreshAccessToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, goSession.ErrUnauthorized) {
			middleware.ClearTokenCookies(w)
		}
		s.writeManagerError(w, "refresh", err)
		return
	}
	middleware.SetTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenBody(pair))
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.AccessToken(r); ok {
		if err := s.manager.Logout(r.Context(), token); err != nil {
			s.writeManagerError(w, "logout", err)
			return
		}
	}
	middleware.ClearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.manager.Ping(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"store_latency": latency.String(),
	})
}

func (s *server) writeManagerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, goSession.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, goSession.ErrRefreshRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many refresh attempts")
	case errors.Is(err, goSession.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, "invalid identity")
	case errors.Is(err, goSession.ErrStoreUnavailable):
		s.logger.Error("session store unavailable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		s.logger.Error("session operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func tokenBody(pair goSession.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		SessionID:        pair.SessionID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
