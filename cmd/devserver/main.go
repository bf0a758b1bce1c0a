package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"alumni-messenger/internal/config"
	"alumni-messenger/internal/devserver"
)

// Demo fixture accounts. The dev server is in-memory; every restart begins
// from exactly this state.
var seedAccounts = []struct {
	username, email, password string
}{
	{"priya", "priya@alumni.edu", "demo-password"},
	{"marcus", "marcus@alumni.edu", "demo-password"},
	{"elena", "elena@alumni.edu", "demo-password"},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	state := devserver.NewState()
	for _, acct := range seedAccounts {
		user, err := state.SeedAccount(acct.username, acct.email, acct.password, "")
		if err != nil {
			logger.Error("seeding account failed", "email", acct.email, "error", err)
			os.Exit(1)
		}
		logger.Info("seeded account", "username", user.Username, "email", acct.email, "id", user.ID)
	}

	server := devserver.NewServer(state, cfg.Server.JWTSecret, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("dev server listening", "addr", addr)
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
