package http

import (
	"net/http"

	"github.com/atinyakov/PermKeeper/internal/middleware"
	"go.uber.org/zap"
)

// TokenStore holds the credential used against the permissions API.
// *backend.SessionTokens implements it.
type TokenStore interface {
	Set(token string)
	Clear()
}

// SessionHandler binds a user session to the gate.
type SessionHandler struct {
	Tokens TokenStore
	Gate   Gate
	Log    *zap.Logger
}

// Login handles POST /api/session. The bearer credential becomes the
// session token, the previous user's snapshot is dropped and permissions
// are fetched fresh from the API.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetTokenFromContext(r.Context())
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	h.Tokens.Set(token)
	if err := h.Gate.Logout(ctx); err != nil {
		h.logger().Warn("clearing previous session", zap.Error(err))
	}
	if err := h.Gate.Refresh(ctx); err != nil {
		h.logger().Warn("login refresh failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "permission refresh failed"})
		return
	}

	perms := &PermissionsHandler{Gate: h.Gate}
	writeJSON(w, http.StatusOK, perms.stateResponse())
}

// Logout handles DELETE /api/session. It forgets the token and clears the
// cached snapshot.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Tokens.Clear()
	if err := h.Gate.Logout(r.Context()); err != nil {
		h.logger().Error("logout failed", zap.Error(err))
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
