// Package main starts the PermKeeper gate: an HTTP service that resolves the
// signed-in user's permissions through the encrypted cache and answers
// permission checks for local consumers.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/atinyakov/PermKeeper/internal/app"
	"github.com/atinyakov/PermKeeper/internal/config"
	"github.com/atinyakov/PermKeeper/internal/logger"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init permission gate", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	// Warm the gate so the first checks are answered from the cache.
	if options.Token != "" {
		go func() {
			if err := a.Gate.Resolve(ctx); err != nil {
				zapLogger.Warn("initial permission resolution failed", zap.Error(err))
			}
		}()
	}

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
