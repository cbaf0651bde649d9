package capture

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazytail-go/lazytail/internal/config"
	"github.com/lazytail-go/lazytail/pkg/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testRoots(t *testing.T) config.Roots {
	t.Helper()
	base := t.TempDir()
	return config.Roots{
		Scope:      config.ScopeProject,
		DataDir:    filepath.Join(base, "data"),
		SourcesDir: filepath.Join(base, "sources"),
	}
}

func TestTeeAppendsAndEchoes(t *testing.T) {
	roots := testRoots(t)
	in := strings.NewReader("one\ntwo\nthree\n")
	var out bytes.Buffer

	tee, err := New("demo", roots, in, &out, logrus.New())
	require.NoError(t, err)
	require.NoError(t, tee.Run(context.Background()))

	assert.Equal(t, "one\ntwo\nthree\n", out.String())

	data, err := os.ReadFile(filepath.Join(roots.DataDir, "demo.log"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))

	_, statErr := os.Stat(filepath.Join(roots.SourcesDir, "demo"))
	assert.True(t, os.IsNotExist(statErr), "marker should be removed on clean EOF exit")
}

func TestTeeRejectsInvalidName(t *testing.T) {
	_, err := New("bad/name", testRoots(t), strings.NewReader(""), &bytes.Buffer{}, logrus.New())
	require.Error(t, err)
}

func TestTeeAbortsOnMarkerCollision(t *testing.T) {
	roots := testRoots(t)
	require.NoError(t, roots.EnsureDirs())
	require.NoError(t, os.WriteFile(filepath.Join(roots.SourcesDir, "demo"), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	tee, err := New("demo", roots, strings.NewReader("x\n"), &bytes.Buffer{}, logrus.New())
	require.NoError(t, err)
	err = tee.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKER_COLLISION")

	// cleanup the marker this test created, since the Tee failed before
	// owning (and thus removing) it
	require.NoError(t, registry.RemoveMarker(roots, "demo"))
}
