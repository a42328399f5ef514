package http

import (
	"net/http"

	"github.com/atinyakov/PermKeeper/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the gate
// API under /api.
//
// Routes:
//
//	GET    /api/permissions                   → permsHandler.List
//	GET    /api/permissions/{module}/{action} → permsHandler.Check
//	POST   /api/permissions/refresh           → permsHandler.Refresh
//	POST   /api/session                       → sessionHandler.Login (Bearer)
//	DELETE /api/session                       → sessionHandler.Logout
//
// Middleware chain (applied in order):
//  1. RequestID                           tags each request
//  2. AllowContentType("application/json") rejects non-JSON bodies
//  3. WithRequestLogging(logger)          logs each request
//  4. BearerToken                         exposes the credential to handlers
func NewRouter(
	permsHandler *PermissionsHandler,
	sessionHandler *SessionHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.BearerToken)

	r.Route("/api", func(r chi.Router) {
		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", permsHandler.List)
			r.Post("/refresh", permsHandler.Refresh)
			r.Get("/{module}/{action}", permsHandler.Check)
		})

		r.Post("/session", sessionHandler.Login)
		r.Delete("/session", sessionHandler.Logout)
	})

	return r
}
