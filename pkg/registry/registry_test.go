package registry

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazytail-go/lazytail/internal/config"
	"github.com/lazytail-go/lazytail/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testRoots(t *testing.T) config.Roots {
	t.Helper()
	base := t.TempDir()
	r := config.Roots{
		Scope:      config.ScopeProject,
		DataDir:    filepath.Join(base, "data"),
		SourcesDir: filepath.Join(base, "sources"),
	}
	require.NoError(t, r.EnsureDirs())
	return r
}

// TestScenarioF_MarkerLiveness covers spec §8 scenario F.
func TestScenarioF_MarkerLiveness(t *testing.T) {
	r := testRoots(t)
	require.NoError(t, os.WriteFile(filepath.Join(r.DataDir, "demo.log"), []byte("hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.SourcesDir, "demo"), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	assert.Equal(t, types.SourceStatusActive, (&Registry{}).Check(r, "demo"))

	require.NoError(t, os.WriteFile(filepath.Join(r.SourcesDir, "demo"), []byte("4294967295\n"), 0o600))
	assert.Equal(t, types.SourceStatusEnded, (&Registry{}).Check(r, "demo"))

	removed, err := CleanupStaleMarkers(r)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, statErr := os.Stat(filepath.Join(r.SourcesDir, "demo"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateMarkerCollisionWithLiveProcess(t *testing.T) {
	r := testRoots(t)
	require.NoError(t, CreateMarker(r, "demo"))
	err := CreateMarker(r, "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKER_COLLISION")
}

func TestCreateMarkerReclaimsStaleMarker(t *testing.T) {
	r := testRoots(t)
	require.NoError(t, os.WriteFile(filepath.Join(r.SourcesDir, "demo"), []byte("4294967295\n"), 0o600))
	require.NoError(t, CreateMarker(r, "demo"))
	pid, err := readMarkerPID(markerPath(r, "demo"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestValidateNameRejectsBadNames(t *testing.T) {
	cases := []string{"", ".hidden", "a/b", "a:b", "a*b", "a?b"}
	for _, name := range cases {
		assert.Error(t, ValidateName(name), "expected error for %q", name)
	}
	assert.NoError(t, ValidateName("good-name_1"))
}

func TestDiscoverProjectShadowsGlobal(t *testing.T) {
	project := testRoots(t)
	global := testRoots(t)
	require.NoError(t, os.WriteFile(filepath.Join(project.DataDir, "shared.log"), []byte("p\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(global.DataDir, "shared.log"), []byte("g\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(global.DataDir, "only-global.log"), []byte("g\n"), 0o644))

	reg := New(logrus.New(), project, global)
	sources, err := reg.Discover()
	require.NoError(t, err)

	byName := map[string]Source{}
	for _, s := range sources {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "shared")
	assert.Equal(t, project.DataDir, byName["shared"].Roots.DataDir)
	require.Contains(t, byName, "only-global")
}

func TestDeleteRefusesPathOutsideRecognizedRoots(t *testing.T) {
	reg := New(logrus.New(), testRoots(t))
	foreign := Source{Name: "x", LogPath: "/tmp/not-managed.log", Roots: config.Roots{DataDir: "/tmp/elsewhere"}}
	err := reg.Delete(foreign)
	require.Error(t, err)
}
