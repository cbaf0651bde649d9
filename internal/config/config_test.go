package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsProjectConfigInAncestor(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lazytail.yaml"), []byte("sparse_index_stride: 5000\n"), 0o644))

	roots, err := Discover(sub)
	require.NoError(t, err)
	assert.Equal(t, ScopeProject, roots.Scope)
	assert.Equal(t, filepath.Join(root, ".lazytail", "data"), roots.DataDir)
	assert.Equal(t, filepath.Join(root, ".lazytail", "sources"), roots.SourcesDir)

	settings, err := LoadSettings(roots)
	require.NoError(t, err)
	assert.Equal(t, 5000, settings.SparseIndexStride)
	assert.Equal(t, 50, settings.HistoryLimit)
}

func TestDiscoverFallsBackToGlobal(t *testing.T) {
	dir := t.TempDir()
	roots, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, roots.Scope)
}

func TestLoadSettingsDefaultsWhenMissing(t *testing.T) {
	r := Roots{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}
	settings, err := LoadSettings(r)
	require.NoError(t, err)
	assert.Equal(t, defaultSettings(), settings)
}

func TestEnsureDirsCreatesWithRestrictivePermissions(t *testing.T) {
	base := t.TempDir()
	r := Roots{DataDir: filepath.Join(base, "data"), SourcesDir: filepath.Join(base, "sources")}
	require.NoError(t, r.EnsureDirs())

	info, err := os.Stat(r.DataDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
