package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alphaops/contactsync/internal/web/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin authenticates the operator account and issues an access
// token. Failed attempts get a uniform 401 regardless of which
// credential was wrong.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: %w", err)))
		return
	}

	if !middleware.CredentialsMatch(req.Username, req.Password, s.cfg.Auth.Username, s.cfg.Auth.Password) {
		slog.Warn("login failed", "username", req.Username, "remote_addr", r.RemoteAddr)
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid username or password",
			Message: "Invalid username or password",
			Code:    "AUTH_BAD_CREDENTIALS",
		})
		return
	}

	token, err := middleware.IssueToken(s.cfg.Auth.JWTSecret, req.Username, s.cfg.Auth.TokenTTL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.cfg.Auth.TokenTTL.Seconds()),
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
