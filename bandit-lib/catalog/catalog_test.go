package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	feed := `The Sims 4|sims4|53687091200|online
Stardew Valley|stardew|1073741824
OpenTTD|openttd|52428800|lan
`

	entries, err := ParseList(strings.NewReader(feed), Windows)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "The Sims 4", entries[0].DisplayName)
	assert.Equal(t, "sims4", entries[0].GameID)
	assert.Equal(t, uint64(53687091200), entries[0].SizeBytes)
	assert.Equal(t, MultiplayerPeer, entries[0].Multiplayer)
	assert.Equal(t, Windows, entries[0].Platform)

	// Missing 4th field defaults to none, not an error.
	assert.Equal(t, MultiplayerNone, entries[1].Multiplayer)
	assert.Equal(t, MultiplayerLAN, entries[2].Multiplayer)
}

func TestParseList_SkipsBlankLines(t *testing.T) {
	feed := "A|a|1\n\n\nB|b|2\n"

	entries, err := ParseList(strings.NewReader(feed), Linux)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseList_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"one field", "Just A Name"},
		{"two fields", "Name|id"},
		{"bad size", "Name|id|huge"},
		{"empty id", "Name| |123"},
		{"empty name", " |id|123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList(strings.NewReader(tt.line), Windows)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedEntry)
		})
	}
}

func TestParseList_NonEmptyGameIDs(t *testing.T) {
	feed := "Zebra|zzz|10\nalpha|aaa|20|official\n"

	entries, err := ParseList(strings.NewReader(feed), Darwin)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEmpty(t, e.GameID)
	}
}

func TestSortEntries_CaseInsensitive(t *testing.T) {
	entries := []Entry{
		{DisplayName: "zelda-like", GameID: "z"},
		{DisplayName: "Asteroids", GameID: "a"},
		{DisplayName: "banjo", GameID: "b"},
		{DisplayName: "Celeste", GameID: "c"},
	}

	SortEntries(entries)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.DisplayName
	}
	assert.Equal(t, []string{"Asteroids", "banjo", "Celeste", "zelda-like"}, names)
}

func TestByID(t *testing.T) {
	entries := []Entry{
		{DisplayName: "A", GameID: "aaa"},
		{DisplayName: "B", GameID: "bbb"},
	}

	e, err := ByID(entries, "bbb")
	require.NoError(t, err)
	assert.Equal(t, "B", e.DisplayName)

	_, err = ByID(entries, "ccc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseMultiplayer(t *testing.T) {
	tests := []struct {
		code     string
		expected Multiplayer
	}{
		{"", MultiplayerNone},
		{"lan", MultiplayerLAN},
		{"LAN", MultiplayerLAN},
		{"online", MultiplayerPeer},
		{"peer", MultiplayerPeer},
		{"official", MultiplayerOfficial},
		{"garbage", MultiplayerNone},
	}

	for _, tt := range tests {
		t.Run("code "+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseMultiplayer(tt.code))
		})
	}
}

func TestCurrentPlatform_Valid(t *testing.T) {
	assert.True(t, CurrentPlatform().Valid())
}

func TestPlatform_SupportsCompatLayer(t *testing.T) {
	assert.True(t, Linux.SupportsCompatLayer())
	assert.False(t, Windows.SupportsCompatLayer())
	assert.False(t, Darwin.SupportsCompatLayer())
}

func TestEntry_FormatSize(t *testing.T) {
	assert.Equal(t, "unknown size", Entry{}.FormatSize())
	assert.Equal(t, "1.0 GiB", Entry{SizeBytes: 1073741824}.FormatSize())
}

func TestEntry_ArchiveName(t *testing.T) {
	assert.Equal(t, "sims4.tar.gz", Entry{GameID: "sims4"}.ArchiveName())
}
