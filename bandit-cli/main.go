package main

import (
	"context"
	"fmt"
	"os"

	"github.com/felixband/bandit/bandit-lib/cache"
	"github.com/felixband/bandit/bandit-lib/catalog"
	"github.com/felixband/bandit/bandit-lib/config"
	"github.com/felixband/bandit/bandit-lib/library"
	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/state"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"go.opentelemetry.io/otel/baggage"
)

var cfg *config.Config

func main() {
	ctx := context.Background()

	// Set global baggage
	m, _ := baggage.NewMember("app.version", "1.0.0")
	b, _ := baggage.New(m)
	ctx = baggage.ContextWithBaggage(ctx, b)

	// Load config
	var err error
	cfg, err = config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	// Setup Logging
	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})

	// Setup Tracing
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		logging.Error("failed to setup tracing", "error", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logging.Error("failed to shutdown tracing", "error", err)
		}
	}()

	// Parse global flags (--json, --quiet, --yes)
	args := parseGlobalFlags(os.Args[1:])

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		handleListCommand(ctx, args[1:])
	case "sync":
		handleSyncCommand(ctx)
	case "install":
		if len(args) < 2 {
			fmt.Println("Usage: bandit install <game-id> [parent-dir]")
			os.Exit(1)
		}
		handleInstallCommand(ctx, args[1:])
	case "uninstall":
		if len(args) < 2 {
			fmt.Println("Usage: bandit uninstall <game-id>")
			os.Exit(1)
		}
		handleUninstallCommand(ctx, args[1])
	case "move":
		if len(args) < 3 {
			fmt.Println("Usage: bandit move <game-id> <new-parent-dir>")
			os.Exit(1)
		}
		handleMoveCommand(ctx, args[1], args[2])
	case "play":
		if len(args) < 2 {
			fmt.Println("Usage: bandit play <game-id>")
			os.Exit(1)
		}
		handlePlayCommand(ctx, args[1])
	case "prereqs":
		if len(args) < 2 {
			fmt.Println("Usage: bandit prereqs <game-id>")
			os.Exit(1)
		}
		handlePrereqsCommand(ctx, args[1])
	case "favorite":
		if len(args) < 2 {
			fmt.Println("Usage: bandit favorite <command>")
			fmt.Println("Commands: add, remove, list")
			os.Exit(1)
		}
		handleFavoriteCommand(args[1:])
	case "status":
		handleStatusCommand(ctx)
	case "config":
		handleConfigCommand(args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("bandit - Game Library Manager")
	fmt.Println()
	fmt.Println("Usage: bandit [global options] <command> [options]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --json                         Output in JSON format")
	fmt.Println("  --quiet, -q                    Suppress non-error output")
	fmt.Println("  --yes, -y                      Answer yes to confirmation prompts")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list [--refresh]               List available games")
	fmt.Println("  sync                           Refresh the local catalog cache")
	fmt.Println("  install <game-id> [dir]        Download and install a game")
	fmt.Println("  uninstall <game-id>            Remove an installed game")
	fmt.Println("  move <game-id> <dir>           Move an install to another directory")
	fmt.Println("  play <game-id>                 Launch an installed game")
	fmt.Println("  prereqs <game-id>              Run a game's prerequisite installers")
	fmt.Println("  favorite add <game-id>         Star a game")
	fmt.Println("  favorite remove <game-id>      Unstar a game")
	fmt.Println("  favorite list                  List starred games")
	fmt.Println("  status                         Show library status")
	fmt.Println("  config show                    Show active configuration")
	fmt.Println("  config init                    Initialize example config")
	fmt.Println("  help                           Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  BANDIT_SERVER                  Catalog service base URL")
	fmt.Println("  BANDIT_DATA_DIR                Application data directory")
	fmt.Println("  BANDIT_GAMES_DIR               Default install parent directory")
}

func newClient() *catalog.Client {
	return catalog.NewClient(cfg.GetServerURL(), catalog.CurrentPlatform())
}

func openStore() *state.Store {
	return state.Load(cfg.GetStatePath(), catalog.CurrentPlatform())
}

func openLibrary() *library.Library {
	return library.New(openStore(), catalog.CurrentPlatform(), cfg.Compat)
}

func openCache() (*cache.DB, error) {
	return cache.Open(cfg.GetCacheDBPath())
}

func openFavorites() *state.Favorites {
	return state.LoadFavorites(cfg.GetFavoritesPath())
}
