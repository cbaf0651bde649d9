package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazytail-go/lazytail/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.json")
	entries := []Entry{
		{Pattern: "error", Mode: types.MatchPlain, CaseSensitive: false},
		{Pattern: `^\d+`, Mode: types.MatchRegex, CaseSensitive: true},
	}
	require.NoError(t, Save(path, entries))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestAppendSkipsDuplicateOfLast(t *testing.T) {
	e := Entry{Pattern: "error", Mode: types.MatchPlain}
	entries := Append(nil, e, DefaultLimit)
	entries = Append(entries, e, DefaultLimit)
	assert.Len(t, entries, 1)

	entries = Append(entries, Entry{Pattern: "other"}, DefaultLimit)
	assert.Len(t, entries, 2)
}

func TestAppendCapsAtLimitDroppingOldest(t *testing.T) {
	var entries []Entry
	for i := 0; i < 5; i++ {
		entries = Append(entries, Entry{Pattern: string(rune('a' + i))}, 3)
	}
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Pattern)
	assert.Equal(t, "e", entries[2].Pattern)
}
