package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcherReportsModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	w, err := New(logrus.New(), 8)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, EventModified, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for modified event")
	}
}

func TestCloseStopsEventPump(t *testing.T) {
	w, err := New(logrus.New(), 4)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close after Close")
	}
}
