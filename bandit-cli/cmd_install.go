package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/felixband/bandit/bandit-lib/installer"
	"github.com/felixband/bandit/bandit-lib/library"
	"github.com/schollz/progressbar/v3"
)

func handleInstallCommand(ctx context.Context, args []string) {
	gameID := args[0]
	parentDir := cfg.GetGamesDir()
	if len(args) > 1 {
		parentDir = args[1]
	}

	entry, err := lookupEntry(ctx, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	lib := openLibrary()
	if lib.Installed(gameID) {
		root, _, _ := lib.InstallRoot(gameID)
		PrintError("Error: %s is already installed under %s\n", gameID, root)
		os.Exit(1)
	}

	absParent, err := filepath.Abs(parentDir)
	if err != nil {
		PrintError("Error resolving install directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(absParent, 0o755); err != nil {
		PrintError("Error creating install directory: %v\n", err)
		os.Exit(1)
	}
	if entry.SizeBytes > 0 {
		if err := library.CheckFreeSpace(absParent, entry.SizeBytes); err != nil {
			PrintError("Error: %v\n", err)
			os.Exit(1)
		}
	}

	PrintInfo("Installing %s (%s) to %s\n", entry.DisplayName, entry.FormatSize(), absParent)

	var bar *progressbar.ProgressBar
	if !outputCfg.Quiet && !outputCfg.JSON {
		bar = progressbar.DefaultBytes(-1, "Downloading")
	}

	inst := installer.New()

	// Ctrl-C cancels the download instead of killing the process outright;
	// a second Ctrl-C falls through to the default handler.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		PrintInfo("\nCancelling...\n")
		inst.Cancel()
		signal.Stop(sigCh)
	}()
	defer signal.Stop(sigCh)

	err = lib.Install(ctx, inst, installer.Request{
		GameID:    gameID,
		SourceURL: newClient().ArchiveURL(gameID),
		TargetDir: absParent,
		SizeHint:  int64(entry.SizeBytes),
		Progress: func(transferred, total int64) {
			if bar != nil {
				if total > 0 && bar.GetMax() <= 0 {
					bar.ChangeMax64(total)
				}
				_ = bar.Set64(transferred)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	switch {
	case errors.Is(err, installer.ErrCancelled):
		fmt.Println("Install cancelled.")
		os.Exit(1)
	case errors.Is(err, installer.ErrBusy):
		PrintError("Error: %v\n", err)
		os.Exit(1)
	case err != nil:
		PrintError("Error: install failed: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]interface{}{
			"gameId":    gameID,
			"installed": true,
			"path":      absParent,
		})
		return
	}
	fmt.Printf("Installed %s.\n", entry.DisplayName)

	prereqs, err := lookupPrereqs(ctx, newClient().Platform(), gameID)
	if err == nil && len(prereqs) > 0 {
		fmt.Printf("This game has %d prerequisite installer(s). Run 'bandit prereqs %s' before first launch.\n",
			len(prereqs), gameID)
	}
}
