package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc.def", "abc.def"},
		{"scheme is case insensitive", "bearer xyz", "xyz"},
		{"extra spaces", "  Bearer   tok  ", "tok"},
		{"missing header", "", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
		{"empty token", "Bearer   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			BearerToken(dummy).ServeHTTP(rec, req)

			if !dummy.called {
				t.Fatal("expected next handler to be called")
			}
			if got := GetTokenFromContext(dummy.ctx); got != tt.want {
				t.Errorf("expected token %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetTokenFromContext_NotSet(t *testing.T) {
	if got := GetTokenFromContext(context.Background()); got != "" {
		t.Errorf("expected empty token, got %q", got)
	}
	ctx := context.WithValue(context.Background(), tokenKey, 42)
	if got := GetTokenFromContext(ctx); got != "" {
		t.Errorf("expected empty token for non-string value, got %q", got)
	}
}

type checkerFunc func(module, action string) bool

func (f checkerFunc) HasPermission(module, action string) bool { return f(module, action) }

func TestRequirePermission(t *testing.T) {
	onlyBlogCreate := checkerFunc(func(m, a string) bool { return m == "Blog" && a == "Create" })

	tests := []struct {
		name    string
		checker Checker
		module  string
		action  string
		code    int
		called  bool
	}{
		{"granted", onlyBlogCreate, "Blog", "Create", http.StatusOK, true},
		{"denied action", onlyBlogCreate, "Blog", "Delete", http.StatusForbidden, false},
		{"denied module", onlyBlogCreate, "Menu", "Create", http.StatusForbidden, false},
		{"nil checker", nil, "Blog", "Create", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/blog", nil)
			RequirePermission(tt.checker, tt.module, tt.action)(dummy).ServeHTTP(rec, req)

			if dummy.called != tt.called {
				t.Errorf("expected called=%v, got %v", tt.called, dummy.called)
			}
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := chiMiddleware.RequestID(WithRequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/permissions", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodGet || fields["path"] != "/api/permissions" {
		t.Errorf("unexpected request fields: %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", fields["status"])
	}
	if fields["size"] != int64(len("short and stout")) {
		t.Errorf("expected size %d, got %v", len("short and stout"), fields["size"])
	}
	if fields["request_id"] == "" {
		t.Error("expected a request id")
	}
}

func TestWithRequestLogging_DefaultStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := WithRequestLogging(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/session", nil))

	if got := logs.All()[0].ContextMap()["status"]; got != int64(http.StatusOK) {
		t.Errorf("expected implicit 200, got %v", got)
	}
}

func TestWithRequestLogging_NilLogger(t *testing.T) {
	dummy := &dummyHandler{}
	WithRequestLogging(nil)(dummy).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !dummy.called {
		t.Error("expected next handler to be called")
	}
}
