// Package http provides the HTTP surface of the permission gate.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/PermKeeper/internal/client/permissions"
	"github.com/atinyakov/PermKeeper/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Gate defines the permission gate operations required by the handlers.
// *permissions.Gate implements it.
type Gate interface {
	State() permissions.State
	LastError() error
	HasPermission(module, action string) bool
	Snapshot() (models.Payload, error)
	Resolve(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
}

// PermissionsHandler serves the resolved permission snapshot and checks
// against it.
type PermissionsHandler struct {
	Gate Gate
	Log  *zap.Logger
}

// StateResponse is the body of GET /api/permissions.
type StateResponse struct {
	State string `json:"state"`
	// Error is set when the last resolution failed and the gate is denying
	// every check.
	Error                 string               `json:"error,omitempty"`
	CurrentUserID         models.UserID        `json:"currentUserId,omitempty"`
	IsSuperAdmin          bool                 `json:"isSuperAdmin"`
	ModuleWisePermissions models.PermissionMap `json:"moduleWisePermissions"`
}

// CheckResponse is the body of GET /api/permissions/{module}/{action}.
type CheckResponse struct {
	Module  string `json:"module"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
	State   string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// List handles GET /api/permissions. It waits for the current resolution
// to finish and writes the snapshot.
func (h *PermissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.Gate.Resolve(r.Context()); err != nil && r.Context().Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "permissions not resolved"})
		return
	}
	writeJSON(w, http.StatusOK, h.stateResponse())
}

// Check handles GET /api/permissions/{module}/{action}. It never blocks: an
// unresolved gate answers false and starts resolving.
func (h *PermissionsHandler) Check(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	action := chi.URLParam(r, "action")

	allowed := h.Gate.HasPermission(module, action)
	writeJSON(w, http.StatusOK, CheckResponse{
		Module:  module,
		Action:  action,
		Allowed: allowed,
		State:   h.Gate.State().String(),
	})
}

// Refresh handles POST /api/permissions/refresh. It bypasses the cache and
// writes the new snapshot, or 502 if the permissions API failed.
func (h *PermissionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Gate.Refresh(r.Context()); err != nil {
		h.logger().Warn("permission refresh failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "permission refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, h.stateResponse())
}

func (h *PermissionsHandler) stateResponse() StateResponse {
	resp := StateResponse{
		State:                 h.Gate.State().String(),
		ModuleWisePermissions: models.PermissionMap{},
	}
	if err := h.Gate.LastError(); err != nil {
		resp.Error = err.Error()
	}
	if p, err := h.Gate.Snapshot(); err == nil {
		resp.CurrentUserID = p.CurrentUserID
		resp.IsSuperAdmin = p.IsSuperAdmin
		resp.ModuleWisePermissions = p.ModuleWisePermissions
	}
	return resp
}

func (h *PermissionsHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
