// Command tkrstore is the operations CLI for the tkr-agent-chat storage
// layer: initialize an environment, inspect the active backend, and list
// agent cards and sessions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/TuckerTucker/tkr-agent-chat/internal/config"
	"github.com/TuckerTucker/tkr-agent-chat/internal/storage/db"
)

// version is set at build time via -ldflags.
var version = "dev"

const usage = `tkrstore - storage operations for tkr-agent-chat

Usage:
  tkrstore <command> [flags]

Commands:
  init       create the storage environment and seed default agent cards
  info       show the active backend, its location, and version
  agents     list registered agent cards
  sessions   list sessions (--limit bounds the result, 0 = all)

Backend selection and paths come from the environment (TKR_DB_BACKEND,
TKR_DB_PATH, ...); a .env file in the working directory is honored.
`

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TKR_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}
	command := args[0]

	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	limit := flags.Int("limit", 20, "maximum sessions to list, 0 for all")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Debug("tkrstore starting", "version", version, "backend", cfg.Backend)

	store, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	switch command {
	case "init":
		// Open already ran idempotent init and seeding.
		info, err := store.Info(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("initialized %s backend at %s\n", info.Backend, info.Location)
		return nil

	case "info":
		info, err := store.Info(ctx)
		if err != nil {
			return err
		}
		return printJSON(info)

	case "agents":
		cards, err := store.ListAgentCards(ctx)
		if err != nil {
			return err
		}
		return printJSON(cards)

	case "sessions":
		sessions, err := store.ListSessions(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(sessions)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
