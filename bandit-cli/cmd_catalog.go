package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/felixband/bandit/bandit-lib/catalog"
)

func handleListCommand(ctx context.Context, args []string) {
	refresh := false
	for _, arg := range args {
		if arg == "--refresh" {
			refresh = true
		}
	}

	entries, err := loadEntries(ctx, refresh)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No games available. Run 'bandit sync' first.")
		return
	}

	lib := openLibrary()
	favorites := openFavorites()
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		installed := ""
		if lib.Installed(entry.GameID) {
			installed = "yes"
		}
		starred := ""
		if favorites.Has(entry.GameID) {
			starred = "*"
		}
		rows = append(rows, []string{
			starred,
			entry.DisplayName,
			entry.GameID,
			entry.FormatSize(),
			string(entry.Multiplayer),
			installed,
		})
	}

	PrintTable([]string{"FAV", "NAME", "ID", "SIZE", "MULTIPLAYER", "INSTALLED"}, rows)
}

func handleFavoriteCommand(args []string) {
	favorites := openFavorites()

	switch args[0] {
	case "add":
		if len(args) < 2 {
			fmt.Println("Usage: bandit favorite add <game-id>")
			os.Exit(1)
		}
		if err := favorites.Add(args[1]); err != nil {
			PrintError("Error: %v\n", err)
			os.Exit(1)
		}
		PrintInfo("Starred %s.\n", args[1])
	case "remove":
		if len(args) < 2 {
			fmt.Println("Usage: bandit favorite remove <game-id>")
			os.Exit(1)
		}
		if err := favorites.Remove(args[1]); err != nil {
			PrintError("Error: %v\n", err)
			os.Exit(1)
		}
		PrintInfo("Unstarred %s.\n", args[1])
	case "list":
		starred := favorites.List()
		if len(starred) == 0 && !outputCfg.JSON {
			fmt.Println("No favorites.")
			return
		}
		PrintResult(starred)
	default:
		fmt.Printf("Unknown favorite command: %s\n", args[0])
		os.Exit(1)
	}
}

func handleSyncCommand(ctx context.Context) {
	client := newClient()

	PrintInfo("Syncing catalog from %s...\n", cfg.GetServerURL())

	entries, err := client.FetchEntries(ctx)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	execPaths, err := client.FetchExecutablePaths(ctx)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	prereqs, err := client.FetchPrereqs(ctx)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	db, err := openCache()
	if err != nil {
		PrintError("Error opening catalog cache: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Refresh(ctx, client.Platform(), entries, execPaths, prereqs); err != nil {
		PrintError("Error refreshing catalog cache: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]interface{}{
			"games":           len(entries),
			"executablePaths": len(execPaths),
			"prereqs":         len(prereqs),
		})
		return
	}
	fmt.Printf("Synced %d games, %d executable paths, %d prerequisite sets.\n",
		len(entries), len(execPaths), len(prereqs))
}

func handleStatusCommand(ctx context.Context) {
	store := openStore()

	lastSync := "never"
	if db, err := openCache(); err == nil {
		if ts, err := db.LastSync(ctx, catalog.CurrentPlatform()); err == nil && !ts.IsZero() {
			lastSync = humanize.Time(ts)
		}
		_ = db.Close()
	}

	if outputCfg.JSON {
		PrintResult(map[string]interface{}{
			"platform":  string(catalog.CurrentPlatform()),
			"server":    cfg.GetServerURL(),
			"dataDir":   cfg.GetDataDir(),
			"gamesDir":  cfg.GetGamesDir(),
			"installed": store.Count(),
			"lastSync":  lastSync,
		})
		return
	}

	fmt.Printf("Platform: %s\n", catalog.CurrentPlatform())
	fmt.Printf("Server: %s\n", cfg.GetServerURL())
	fmt.Printf("Data dir: %s\n", cfg.GetDataDir())
	fmt.Printf("Games dir: %s\n", cfg.GetGamesDir())
	fmt.Printf("Installed games: %d\n", store.Count())
	fmt.Printf("Last sync: %s\n", lastSync)
}

// loadEntries returns catalog entries from the local cache, fetching from
// the service when the cache is empty or a refresh is forced. A fetch
// failure falls back to whatever the cache holds.
func loadEntries(ctx context.Context, refresh bool) ([]catalog.Entry, error) {
	db, err := openCache()
	if err != nil {
		return nil, fmt.Errorf("open catalog cache: %w", err)
	}
	defer func() { _ = db.Close() }()

	platform := catalog.CurrentPlatform()
	if !refresh {
		cached, err := db.Entries(ctx, platform)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	client := newClient()
	entries, err := client.FetchEntries(ctx)
	if err != nil {
		cached, cacheErr := db.Entries(ctx, platform)
		if cacheErr == nil && len(cached) > 0 {
			PrintInfo("Catalog service unreachable, using cached listing.\n")
			return cached, nil
		}
		return nil, err
	}

	execPaths, execErr := client.FetchExecutablePaths(ctx)
	prereqs, prereqErr := client.FetchPrereqs(ctx)
	if execErr == nil && prereqErr == nil {
		if err := db.Refresh(ctx, platform, entries, execPaths, prereqs); err != nil {
			PrintInfo("Warning: failed to update catalog cache: %v\n", err)
		}
	}

	catalog.SortEntries(entries)
	return entries, nil
}

// lookupEntry finds one game in the catalog, preferring the cache.
func lookupEntry(ctx context.Context, gameID string) (catalog.Entry, error) {
	entries, err := loadEntries(ctx, false)
	if err != nil {
		return catalog.Entry{}, err
	}
	return catalog.ByID(entries, gameID)
}

// lookupExecPath returns a title's relative executable path as published
// for the given platform key, preferring the cache.
func lookupExecPath(ctx context.Context, platform catalog.Platform, gameID string) (string, error) {
	if db, err := openCache(); err == nil {
		path, err := db.ExecutablePath(ctx, platform, gameID)
		_ = db.Close()
		if err == nil {
			return path, nil
		}
	}

	client := catalog.NewClient(cfg.GetServerURL(), platform)
	paths, err := client.FetchExecutablePaths(ctx)
	if err != nil {
		return "", err
	}
	path, ok := paths[gameID]
	if !ok {
		return "", fmt.Errorf("no executable path published for %s", gameID)
	}
	return path, nil
}

// lookupPrereqs returns a title's prerequisite installers, preferring the
// cache.
func lookupPrereqs(ctx context.Context, platform catalog.Platform, gameID string) ([]catalog.Prereq, error) {
	if db, err := openCache(); err == nil {
		prereqs, err := db.Prereqs(ctx, platform, gameID)
		_ = db.Close()
		if err == nil {
			return prereqs, nil
		}
	}

	client := catalog.NewClient(cfg.GetServerURL(), platform)
	all, err := client.FetchPrereqs(ctx)
	if err != nil {
		return nil, err
	}
	return all[gameID], nil
}
