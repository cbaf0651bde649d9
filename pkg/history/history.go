// Package history persists the filter pattern history spec.md §6 names and
// §10 calls out as a supplemented feature from the Rust original's
// src/history.rs: a capped, dedup-skipping JSON array of past filter
// invocations, so a user can re-run a prior pattern verbatim.
//
// Grounded on internal/config's load-defaults-then-override file handling
// (read-if-present, treat absence as empty) rather than any teacher
// persistence package — none of the teacher's disk-backed stores
// (pkg/positions, pkg/buffer) model a small capped list, just growing
// columnar/positional state.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// DefaultLimit is the cap spec §6 names ("capped at 50 entries").
const DefaultLimit = 50

// Entry is one past filter invocation.
type Entry struct {
	Pattern       string         `json:"pattern"`
	Mode          types.MatchMode `json:"-"`
	CaseSensitive bool           `json:"case_sensitive"`
}

// entryWire is Entry's JSON-on-disk shape: Mode serializes as the string
// "Plain"/"Regex" spec §6 names rather than MatchMode's int.
type entryWire struct {
	Pattern       string `json:"pattern"`
	Mode          string `json:"mode"`
	CaseSensitive bool   `json:"case_sensitive"`
}

func (e Entry) toWire() entryWire {
	mode := "Plain"
	if e.Mode == types.MatchRegex {
		mode = "Regex"
	}
	return entryWire{Pattern: e.Pattern, Mode: mode, CaseSensitive: e.CaseSensitive}
}

func (w entryWire) toEntry() Entry {
	mode := types.MatchPlain
	if w.Mode == "Regex" {
		mode = types.MatchRegex
	}
	return Entry{Pattern: w.Pattern, Mode: mode, CaseSensitive: w.CaseSensitive}
}

// DefaultPath returns ~/.config/lazytail/history.json, the global location
// spec §6 names.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.IOError("default_path", "resolving home directory", err)
	}
	return filepath.Join(home, ".config", "lazytail", "history.json"), nil
}

// Load reads path's history, returning an empty slice (not an error) if the
// file is absent.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOError("load", "reading "+path, err)
	}
	var wire []entryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.ParseError("load", "parsing "+path+": "+err.Error())
	}
	entries := make([]Entry, len(wire))
	for i, w := range wire {
		entries[i] = w.toEntry()
	}
	return entries, nil
}

// Save writes entries to path, creating parent directories with mode 0700
// per spec §6's directory convention.
func Save(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.IOError("save", "creating "+filepath.Dir(path), err)
	}
	wire := make([]entryWire, len(entries))
	for i, e := range entries {
		wire[i] = e.toWire()
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return errors.New(errors.CodeIO, "history", "save", "marshaling history").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.IOError("save", "writing "+path, err)
	}
	return nil
}

// Append adds entry to entries, skipping it if it duplicates the last
// entry (spec §6/§10: "duplicate-of-last entries are skipped"), and
// truncates to limit by dropping the oldest entries first.
func Append(entries []Entry, entry Entry, limit int) []Entry {
	if len(entries) > 0 && entries[len(entries)-1] == entry {
		return entries
	}
	entries = append(entries, entry)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}
