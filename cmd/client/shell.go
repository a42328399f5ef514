package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/atinyakov/PermKeeper/internal/client/permissions"
	"github.com/atinyakov/PermKeeper/internal/models"
	"github.com/fatih/color"
)

const helpText = "Available commands: help, check <module> <action>, show, refresh, login <token>, logout, exit"

// gate is the subset of *permissions.Gate the shell drives.
type gate interface {
	State() permissions.State
	LastError() error
	HasPermission(module, action string) bool
	Snapshot() (models.Payload, error)
	Resolve(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
}

type tokenStore interface {
	Set(token string)
	Clear()
}

type shell struct {
	gate   gate
	tokens tokenStore
	in     *bufio.Scanner
	out    io.Writer
}

// run reads commands until exit, EOF or ctx is done.
func (s *shell) run(ctx context.Context) {
	for ctx.Err() == nil {
		fmt.Fprint(s.out, "permkeeper> ")
		if !s.in.Scan() {
			return
		}
		args := strings.Fields(s.in.Text())
		if len(args) == 0 {
			continue
		}
		if !s.exec(ctx, args) {
			return
		}
	}
}

// exec runs one command and reports whether the shell should continue.
func (s *shell) exec(ctx context.Context, args []string) bool {
	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "check":
		if len(args) != 3 {
			fmt.Fprintln(s.out, "Usage: check <module> <action>")
			return true
		}
		s.check(ctx, args[1], args[2])
	case "show":
		s.show(ctx)
	case "refresh":
		if err := s.gate.Refresh(ctx); err != nil {
			s.failure("Refresh failed", err)
			return true
		}
		fmt.Fprintln(s.out, color.GreenString("✓")+" Permissions refreshed")
	case "login":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "Usage: login <token>")
			return true
		}
		s.tokens.Set(args[1])
		_ = s.gate.Logout(ctx)
		if err := s.gate.Refresh(ctx); err != nil {
			s.failure("Login failed", err)
			return true
		}
		fmt.Fprintln(s.out, color.GreenString("✓")+" Logged in")
	case "logout":
		s.tokens.Clear()
		if err := s.gate.Logout(ctx); err != nil {
			s.failure("Logout failed", err)
			return true
		}
		fmt.Fprintln(s.out, color.GreenString("✓")+" Logged out")
	case "exit":
		fmt.Fprintln(s.out, "Bye")
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}
	return true
}

func (s *shell) check(ctx context.Context, module, action string) {
	// The shell waits for resolution so the first answer is not a spurious deny.
	if err := s.gate.Resolve(ctx); err != nil {
		s.failure("Resolution failed, denying", err)
	}
	if s.gate.HasPermission(module, action) {
		fmt.Fprintf(s.out, "%s %s/%s allowed\n", color.GreenString("✓"), module, action)
		return
	}
	fmt.Fprintf(s.out, "%s %s/%s denied\n", color.RedString("✗"), module, action)
}

func (s *shell) show(ctx context.Context) {
	if err := s.gate.Resolve(ctx); err != nil {
		s.failure("Resolution failed", err)
	}
	p, err := s.gate.Snapshot()
	if err != nil {
		s.failure("Nothing to show", err)
		return
	}

	fmt.Fprintf(s.out, "User: %s\n", color.YellowString(string(p.CurrentUserID)))
	if p.IsSuperAdmin {
		fmt.Fprintln(s.out, color.CyanString("→")+" Super admin: every action is allowed")
		return
	}
	if len(p.ModuleWisePermissions) == 0 {
		fmt.Fprintln(s.out, color.CyanString("→")+" No permissions granted")
		return
	}
	modules := make([]string, 0, len(p.ModuleWisePermissions))
	for m := range p.ModuleWisePermissions {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		fmt.Fprintf(s.out, "  %s: %s\n", m, strings.Join(p.ModuleWisePermissions[m], ", "))
	}
}

func (s *shell) failure(msg string, err error) {
	fmt.Fprintf(s.out, "%s %s: %v\n", color.RedString("✗"), msg, err)
}
