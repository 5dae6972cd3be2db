// Package catalog models the remotely published list of installable titles
// and fetches it from the catalog service.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Sentinel errors for catalog parsing and lookup.
var (
	ErrMalformedEntry = errors.New("malformed catalog entry")
	ErrNotFound       = errors.New("game not found in catalog")
)

// Platform identifies the origin platform of a title. Values match the
// directory names the catalog service publishes under.
type Platform string

const (
	Windows Platform = "Windows"
	Linux   Platform = "Linux"
	Darwin  Platform = "Darwin"
)

// KnownPlatforms lists every platform the catalog service publishes for.
var KnownPlatforms = []Platform{Windows, Linux, Darwin}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return Darwin
	default:
		return Linux
	}
}

// SupportsCompatLayer reports whether p can run Windows titles through a
// compatibility layer. Only Linux ships one.
func (p Platform) SupportsCompatLayer() bool {
	return p == Linux
}

// Valid reports whether p is a platform the catalog service knows.
func (p Platform) Valid() bool {
	switch p {
	case Windows, Linux, Darwin:
		return true
	}
	return false
}

// Multiplayer classifies a title's multiplayer support.
type Multiplayer string

const (
	MultiplayerNone     Multiplayer = "none"
	MultiplayerLAN      Multiplayer = "lan"
	MultiplayerPeer     Multiplayer = "online"
	MultiplayerOfficial Multiplayer = "official"
)

// parseMultiplayer maps a feed code to a Multiplayer class. Unknown codes
// fall back to none, matching the lenient default for a missing field.
func parseMultiplayer(code string) Multiplayer {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "lan":
		return MultiplayerLAN
	case "online", "peer":
		return MultiplayerPeer
	case "official":
		return MultiplayerOfficial
	default:
		return MultiplayerNone
	}
}

// Entry is one installable title from the catalog feed. Immutable once
// fetched.
type Entry struct {
	DisplayName string
	GameID      string
	SizeBytes   uint64
	Multiplayer Multiplayer
	Platform    Platform
}

// ArchiveName returns the file name of the title's packaged archive.
func (e Entry) ArchiveName() string {
	return e.GameID + ".tar.gz"
}

// FormatSize returns a human-readable size label for the entry.
func (e Entry) FormatSize() string {
	if e.SizeBytes == 0 {
		return "unknown size"
	}
	return humanize.IBytes(e.SizeBytes)
}

// ParseList parses the newline-delimited pipe-separated catalog feed for
// the given platform. Each line is
//
//	displayName|gameId|sizeBytes[|multiplayerClass]
//
// Lines with fewer than three fields are rejected. A missing fourth field
// defaults the multiplayer class to none. Blank lines are skipped.
func ParseList(r io.Reader, platform Platform) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := parseLine(line, platform)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog feed: %w", err)
	}

	return entries, nil
}

func parseLine(line string, platform Platform) (Entry, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 3 {
		return Entry{}, fmt.Errorf("%w: expected at least 3 pipe-separated fields, got %d", ErrMalformedEntry, len(fields))
	}

	displayName := strings.TrimSpace(fields[0])
	gameID := strings.TrimSpace(fields[1])
	if displayName == "" || gameID == "" {
		return Entry{}, fmt.Errorf("%w: empty display name or game id", ErrMalformedEntry)
	}

	size, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad size %q", ErrMalformedEntry, fields[2])
	}

	entry := Entry{
		DisplayName: displayName,
		GameID:      gameID,
		SizeBytes:   size,
		Multiplayer: MultiplayerNone,
		Platform:    platform,
	}
	if len(fields) >= 4 {
		entry.Multiplayer = parseMultiplayer(fields[3])
	}

	return entry, nil
}

// SortEntries orders entries by display name, case-insensitively, in place.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
}

// ByID returns the entry with the given game id. Linear scan; catalogs are
// tens to low hundreds of entries.
func ByID(entries []Entry, gameID string) (Entry, error) {
	for _, e := range entries {
		if e.GameID == gameID {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, gameID)
}
