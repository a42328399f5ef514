// Package main is the interactive PermKeeper client: it resolves the current
// user's permissions through the encrypted cache and lets the operator
// query them from a shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atinyakov/PermKeeper/internal/app"
	"github.com/atinyakov/PermKeeper/internal/config"
	"github.com/atinyakov/PermKeeper/internal/logger"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

// promptToken asks for a bearer token until a non-empty line is read.
func promptToken(in *bufio.Scanner, out io.Writer) string {
	for {
		fmt.Fprint(out, "Enter bearer token: ")
		if !in.Scan() {
			return ""
		}
		if token := strings.TrimSpace(in.Text()); token != "" {
			return token
		}
	}
}

// main parses configuration, wires the gate and runs the shell.
func main() {
	options := config.Parse()
	fmt.Printf("PermKeeper Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	// The shell owns stdout; only warnings and above are logged.
	if err := log.Init("warn"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, options, log.Log)
	if err != nil {
		log.Log.Fatal("cannot init permission gate", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	in := bufio.NewScanner(os.Stdin)
	if options.Token == "" {
		token := promptToken(in, os.Stdout)
		if token == "" {
			return
		}
		a.Tokens.Set(token)
	}

	sh := &shell{gate: a.Gate, tokens: a.Tokens, in: in, out: os.Stdout}
	sh.run(ctx)
}
