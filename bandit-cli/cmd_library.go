package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixband/bandit/bandit-lib/library"
)

func handleUninstallCommand(ctx context.Context, gameID string) {
	lib := openLibrary()

	_, foundUnder, ok := lib.InstallRoot(gameID)
	if !ok {
		PrintError("Error: %s is not installed\n", gameID)
		os.Exit(1)
	}

	execPath, err := lookupExecPath(ctx, foundUnder, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	err = lib.Uninstall(ctx, gameID, execPath, ConfirmPrompt("Delete"))
	switch {
	case errors.Is(err, library.ErrDeclined):
		fmt.Println("Aborted.")
		os.Exit(1)
	case err != nil:
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]interface{}{"gameId": gameID, "uninstalled": true})
		return
	}
	fmt.Printf("Uninstalled %s.\n", gameID)
}

func handleMoveCommand(ctx context.Context, gameID, newParent string) {
	lib := openLibrary()

	_, foundUnder, ok := lib.InstallRoot(gameID)
	if !ok {
		PrintError("Error: %s is not installed\n", gameID)
		os.Exit(1)
	}

	execPath, err := lookupExecPath(ctx, foundUnder, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	err = lib.Move(ctx, gameID, execPath, newParent, ConfirmPrompt("Overwrite"))
	switch {
	case errors.Is(err, library.ErrDeclined):
		fmt.Println("Aborted.")
		os.Exit(1)
	case errors.Is(err, library.ErrInsufficientSpace):
		PrintError("Error: %v\n", err)
		os.Exit(1)
	case err != nil:
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(map[string]interface{}{"gameId": gameID, "moved": true, "path": newParent})
		return
	}
	fmt.Printf("Moved %s to %s.\n", gameID, newParent)
}

func handlePlayCommand(ctx context.Context, gameID string) {
	lib := openLibrary()

	_, foundUnder, ok := lib.InstallRoot(gameID)
	if !ok {
		PrintError("Error: %s is not installed\n", gameID)
		os.Exit(1)
	}

	execPath, err := lookupExecPath(ctx, foundUnder, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	if err := lib.Play(ctx, gameID, execPath); err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
}

func handlePrereqsCommand(ctx context.Context, gameID string) {
	lib := openLibrary()

	_, foundUnder, ok := lib.InstallRoot(gameID)
	if !ok {
		PrintError("Error: %s is not installed\n", gameID)
		os.Exit(1)
	}

	execPath, err := lookupExecPath(ctx, foundUnder, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	prereqs, err := lookupPrereqs(ctx, foundUnder, gameID)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(prereqs) == 0 {
		fmt.Printf("%s has no prerequisite installers.\n", gameID)
		return
	}

	PrintInfo("Running %d prerequisite installer(s) for %s...\n", len(prereqs), gameID)
	if err := lib.InstallPrereqs(ctx, gameID, execPath, prereqs); err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Prerequisites installed.")
}
