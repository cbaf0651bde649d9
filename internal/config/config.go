// Package config locates lazytail.yaml by walking ancestors of the working
// directory and resolves the project-vs-global data and source roots spec
// §6 names. It deliberately does not parse theme/preset/palette YAML — that
// DSL lives in the terminal-rendering layer, out of this core's scope.
package config

import (
	"os"
	"path/filepath"

	"github.com/lazytail-go/lazytail/pkg/errors"

	"gopkg.in/yaml.v2"
)

// Scope distinguishes a project-local config from the global fallback.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeProject
)

func (s Scope) String() string {
	if s == ScopeProject {
		return "project"
	}
	return "global"
}

// Roots is the resolved pair of directories a Scope contributes.
type Roots struct {
	Scope      Scope
	ConfigPath string // lazytail.yaml (project) or config.yaml (global); may not exist
	DataDir    string // <root>/data
	SourcesDir string // <root>/sources
}

// Settings is the subset of lazytail.yaml this core reads. Everything
// else (themes, presets, key bindings) belongs to the outer layers.
type Settings struct {
	SparseIndexStride int `yaml:"sparse_index_stride"`
	HistoryLimit      int `yaml:"history_limit"`
}

func defaultSettings() Settings {
	return Settings{
		SparseIndexStride: 10000,
		HistoryLimit:      50,
	}
}

// Discover walks upward from dir looking for a project config file
// (lazytail.yaml). If found, it returns project Roots rooted at
// <project_root>/.lazytail; otherwise it returns global Roots rooted at
// ~/.config/lazytail.
func Discover(dir string) (Roots, error) {
	root, found, err := findAncestorConfig(dir, "lazytail.yaml")
	if err != nil {
		return Roots{}, errors.IOError("discover", "walking ancestors for lazytail.yaml", err)
	}
	if found {
		base := filepath.Join(root, ".lazytail")
		return Roots{
			Scope:      ScopeProject,
			ConfigPath: filepath.Join(root, "lazytail.yaml"),
			DataDir:    filepath.Join(base, "data"),
			SourcesDir: filepath.Join(base, "sources"),
		}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Roots{}, errors.IOError("discover", "resolving home directory", err)
	}
	base := filepath.Join(home, ".config", "lazytail")
	return Roots{
		Scope:      ScopeGlobal,
		ConfigPath: filepath.Join(base, "config.yaml"),
		DataDir:    filepath.Join(base, "data"),
		SourcesDir: filepath.Join(base, "sources"),
	}, nil
}

// findAncestorConfig walks dir and its parents looking for name, stopping
// at the filesystem root.
func findAncestorConfig(dir, name string) (root string, found bool, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", false, err
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return dir, true, nil
		} else if !os.IsNotExist(statErr) {
			return "", false, statErr
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// EnsureDirs creates the data and sources directories for r with mode 0700,
// per spec §6's "created with mode 0700 on Unix" rule.
func (r Roots) EnsureDirs() error {
	for _, d := range []string{r.DataDir, r.SourcesDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return errors.IOError("ensure_dirs", "creating "+d, err)
		}
	}
	return nil
}

// LoadSettings reads r.ConfigPath if present, applying defaults for any
// field the file omits or leaves zero. A missing file is not an error — it
// yields the defaults.
func LoadSettings(r Roots) (Settings, error) {
	settings := defaultSettings()

	data, err := os.ReadFile(r.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, errors.IOError("load_settings", "reading "+r.ConfigPath, err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return settings, errors.ParseError("load_settings", "parsing "+r.ConfigPath+": "+err.Error())
	}
	if loaded.SparseIndexStride > 0 {
		settings.SparseIndexStride = loaded.SparseIndexStride
	}
	if loaded.HistoryLimit > 0 {
		settings.HistoryLimit = loaded.HistoryLimit
	}
	return settings, nil
}
