package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/PermKeeper/internal/client/permissions"
	"github.com/atinyakov/PermKeeper/internal/models"
	handler "github.com/atinyakov/PermKeeper/internal/server/handler/http"
	"go.uber.org/zap"
)

// fakeGate records calls and returns preconfigured results.
type fakeGate struct {
	state      permissions.State
	lastErr    error
	payload    *models.Payload
	resolveErr error
	refreshErr error
	logoutErr  error

	resolved  int
	refreshed int
	loggedOut int
	checked   [][2]string
}

func (f *fakeGate) State() permissions.State { return f.state }
func (f *fakeGate) LastError() error         { return f.lastErr }

func (f *fakeGate) HasPermission(module, action string) bool {
	f.checked = append(f.checked, [2]string{module, action})
	if f.payload == nil {
		return false
	}
	if f.payload.IsSuperAdmin {
		return true
	}
	for _, a := range f.payload.ModuleWisePermissions[module] {
		if a == action {
			return true
		}
	}
	return false
}

func (f *fakeGate) Snapshot() (models.Payload, error) {
	if f.payload == nil {
		return models.Payload{}, permissions.ErrNotResolved
	}
	return *f.payload, nil
}

func (f *fakeGate) Resolve(context.Context) error {
	f.resolved++
	return f.resolveErr
}

func (f *fakeGate) Refresh(context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func (f *fakeGate) Logout(context.Context) error {
	f.loggedOut++
	return f.logoutErr
}

type fakeTokens struct {
	token   string
	cleared bool
}

func (f *fakeTokens) Set(token string) { f.token = token }
func (f *fakeTokens) Clear()           { f.token, f.cleared = "", true }

func blogEditor() *models.Payload {
	return &models.Payload{
		CurrentUserID:         "42",
		ModuleWisePermissions: models.PermissionMap{"Blog": {"Create", "Edit"}},
	}
}

func newRouter(g *fakeGate, tokens *fakeTokens) http.Handler {
	return handler.NewRouter(
		&handler.PermissionsHandler{Gate: g},
		&handler.SessionHandler{Gate: g, Tokens: tokens},
		zap.NewNop(),
	)
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestList_Ready(t *testing.T) {
	g := &fakeGate{state: permissions.StateReady, payload: blogEditor()}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodGet, "/api/permissions", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q; want application/json", ct)
	}
	var resp handler.StateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "ready" || resp.CurrentUserID != "42" || resp.Error != "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if got := resp.ModuleWisePermissions["Blog"]; len(got) != 2 {
		t.Errorf("Blog actions = %v; want 2", got)
	}
	if g.resolved != 1 {
		t.Errorf("Resolve calls = %d; want 1", g.resolved)
	}
}

func TestList_FailedResolutionReportsError(t *testing.T) {
	g := &fakeGate{
		state:      permissions.StateReady,
		payload:    &models.Payload{ModuleWisePermissions: models.PermissionMap{}},
		lastErr:    errors.New("backend down"),
		resolveErr: errors.New("backend down"),
	}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodGet, "/api/permissions", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	var resp handler.StateResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "backend down" {
		t.Errorf("error = %q; want %q", resp.Error, "backend down")
	}
	if len(resp.ModuleWisePermissions) != 0 || resp.IsSuperAdmin {
		t.Errorf("failed resolution must expose an empty map, got %+v", resp)
	}
}

func TestList_CallerGaveUp(t *testing.T) {
	g := &fakeGate{state: permissions.StateLoading, resolveErr: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	newRouter(g, &fakeTokens{}).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		target  string
		allowed bool
	}{
		{"/api/permissions/Blog/Create", true},
		{"/api/permissions/Blog/Delete", false},
		{"/api/permissions/Menu/Create", false},
	}
	g := &fakeGate{state: permissions.StateReady, payload: blogEditor()}
	r := newRouter(g, &fakeTokens{})
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, r, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
			}
			var resp handler.CheckResponse
			_ = json.NewDecoder(w.Body).Decode(&resp)
			if resp.Allowed != tt.allowed {
				t.Errorf("allowed = %v; want %v", resp.Allowed, tt.allowed)
			}
			if resp.State != "ready" {
				t.Errorf("state = %q; want ready", resp.State)
			}
		})
	}
	if g.resolved != 0 {
		t.Error("check must not block on resolution")
	}
}

func TestCheck_Unresolved(t *testing.T) {
	g := &fakeGate{state: permissions.StateUninitialized}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodGet, "/api/permissions/Blog/Create", nil)

	var resp handler.CheckResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Allowed {
		t.Error("unresolved gate must deny")
	}
	if len(g.checked) != 1 || g.checked[0] != [2]string{"Blog", "Create"} {
		t.Errorf("checked = %v", g.checked)
	}
}

func TestRefresh(t *testing.T) {
	g := &fakeGate{state: permissions.StateReady, payload: blogEditor()}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodPost, "/api/permissions/refresh", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if g.refreshed != 1 {
		t.Errorf("Refresh calls = %d; want 1", g.refreshed)
	}
}

func TestRefresh_BackendError(t *testing.T) {
	g := &fakeGate{refreshErr: errors.New("boom")}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodPost, "/api/permissions/refresh", nil)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadGateway)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("backend error details must not leak")
	}
}

func TestLogin(t *testing.T) {
	g := &fakeGate{state: permissions.StateReady, payload: blogEditor()}
	tokens := &fakeTokens{}
	w := do(t, newRouter(g, tokens), http.MethodPost, "/api/session", map[string]string{"Authorization": "Bearer jwt-42"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}
	if tokens.token != "jwt-42" {
		t.Errorf("token = %q; want jwt-42", tokens.token)
	}
	if g.loggedOut != 1 || g.refreshed != 1 {
		t.Errorf("logout=%d refresh=%d; want 1 and 1", g.loggedOut, g.refreshed)
	}
}

func TestLogin_NoToken(t *testing.T) {
	g := &fakeGate{}
	tokens := &fakeTokens{}
	w := do(t, newRouter(g, tokens), http.MethodPost, "/api/session", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d; want %d", w.Code, http.StatusUnauthorized)
	}
	if g.refreshed != 0 || tokens.token != "" {
		t.Error("no session must be started without a token")
	}
}

func TestLogin_RefreshFails(t *testing.T) {
	g := &fakeGate{refreshErr: errors.New("401 from api")}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodPost, "/api/session", map[string]string{"Authorization": "Bearer bad"})

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadGateway)
	}
}

func TestLogout(t *testing.T) {
	g := &fakeGate{state: permissions.StateReady, payload: blogEditor()}
	tokens := &fakeTokens{token: "jwt-42"}
	w := do(t, newRouter(g, tokens), http.MethodDelete, "/api/session", nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d; want %d", w.Code, http.StatusNoContent)
	}
	if !tokens.cleared || g.loggedOut != 1 {
		t.Errorf("cleared=%v logout=%d", tokens.cleared, g.loggedOut)
	}
}

func TestLogout_SlotError(t *testing.T) {
	g := &fakeGate{logoutErr: errors.New("disk gone")}
	w := do(t, newRouter(g, &fakeTokens{}), http.MethodDelete, "/api/session", nil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	g := &fakeGate{}
	req := httptest.NewRequest(http.MethodPost, "/api/permissions/refresh", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	newRouter(g, &fakeTokens{}).ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d; want %d", w.Code, http.StatusUnsupportedMediaType)
	}
	if g.refreshed != 0 {
		t.Error("handler must not run")
	}
}
