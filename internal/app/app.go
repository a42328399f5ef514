// Package app wires configuration, storage, the permissions API client,
// the encrypted cache and the gate into one unit shared by the binaries.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/atinyakov/PermKeeper/internal/client/backend"
	"github.com/atinyakov/PermKeeper/internal/client/permissions"
	"github.com/atinyakov/PermKeeper/internal/client/storage"
	"github.com/atinyakov/PermKeeper/internal/config"
	handler "github.com/atinyakov/PermKeeper/internal/server/handler/http"
	"go.uber.org/zap"
)

// App holds the wired components.
type App struct {
	Gate   *permissions.Gate
	Cache  *permissions.Cache
	Tokens *backend.SessionTokens

	log       *zap.Logger
	closeSlot func() error
}

// New builds an App from validated options. The caller must Close it.
func New(ctx context.Context, o *config.Options, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	suite, err := storage.ParseSuite(o.Cipher)
	if err != nil {
		return nil, err
	}

	slot, closeSlot, err := storage.Open(ctx, o.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", o.StorageDriver, err)
	}

	httpClient, err := newHTTPClient(o)
	if err != nil {
		_ = closeSlot()
		return nil, err
	}

	tokens := backend.NewSessionTokens(o.Token)
	api := backend.NewClient(httpClient, o.BackendURL, tokens, o.SuperAdminID)
	cache := permissions.NewCache(slot, api, o.SharedSecret, suite, o.SuperAdminID, log.Named("cache"))
	gate := permissions.NewGate(cache,
		permissions.WithLogger(log.Named("gate")),
		permissions.WithResolveTimeout(o.Timeout()),
	)

	log.Info("permission gate ready",
		zap.String("backend", o.BackendURL),
		zap.String("storage", o.StorageDriver),
		zap.String("cipher", string(suite)),
	)

	return &App{
		Gate:      gate,
		Cache:     cache,
		Tokens:    tokens,
		log:       log,
		closeSlot: closeSlot,
	}, nil
}

func newHTTPClient(o *config.Options) (*http.Client, error) {
	if o.CertFile == "" && o.CAFile == "" {
		return backend.NewHTTPClient(o.Timeout()), nil
	}
	return backend.LoadClientCertificate(o.CertFile, o.KeyFile, o.CAFile, o.Timeout())
}

// Router returns the gate's HTTP API.
func (a *App) Router() http.Handler {
	return handler.NewRouter(
		&handler.PermissionsHandler{Gate: a.Gate, Log: a.log},
		&handler.SessionHandler{Gate: a.Gate, Tokens: a.Tokens, Log: a.log},
		a.log,
	)
}

// Close releases the storage connection.
func (a *App) Close() error {
	return a.closeSlot()
}
