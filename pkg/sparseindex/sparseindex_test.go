package sparseindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTempFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.txt")
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestScenarioD_SparseIndexFallback builds a stride-3 index over a 10-line
// file and checks locate/forward-scan semantics.
func TestScenarioD_SparseIndexFallback(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = strings_Repeat("x", i+1)
	}
	path := writeTempFile(t, lines)

	idx, err := ScanFile(context.Background(), path, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, idx.TotalLines())

	offset, skip := idx.Locate(7)
	wantOffset, _ := idx.Locate(6)
	assert.Equal(t, wantOffset, offset)
	assert.Equal(t, 1, skip)
}

func strings_Repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestAppendRejectsNonMultipleOfStride(t *testing.T) {
	idx := New(10)
	require.NoError(t, idx.Append(0, 0))
	require.NoError(t, idx.Append(10, 100))
	err := idx.Append(15, 150)
	assert.Error(t, err)
}

func TestAppendRejectsNonIncreasingLine(t *testing.T) {
	idx := New(10)
	require.NoError(t, idx.Append(10, 100))
	err := idx.Append(10, 200)
	assert.Error(t, err)
}

func TestLocateEmptyIndexReturnsZero(t *testing.T) {
	idx := New(10)
	offset, skip := idx.Locate(5)
	assert.Equal(t, int64(0), offset)
	assert.Equal(t, 5, skip)
}

func TestStrideOneActsAsFullIndex(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	path := writeTempFile(t, lines)

	idx, err := ScanFile(context.Background(), path, 1)
	require.NoError(t, err)

	offset, skip := idx.Locate(3)
	assert.Equal(t, 0, skip)
	assert.Equal(t, int64(6), offset) // "a\nb\nc\n" = 6 bytes before line 3 ("d")
}

func TestEmptyFileYieldsZeroLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	idx, err := ScanFile(context.Background(), path, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.TotalLines())
}

func TestIncrementalScanStartsFromKnownLineCount(t *testing.T) {
	path := writeTempFile(t, []string{"a", "b", "c"})
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	idx, n, err := Build(context.Background(), f, info.Size(), 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, idx.TotalLines())

	// Append more lines, then scan only the new bytes.
	require.NoError(t, f.Close())
	extra := "d\ne\n"
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString(extra)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	info2, err := f2.Stat()
	require.NoError(t, err)

	idx2, n2, err := Build(context.Background(), f2, info2.Size(), info.Size(), idx.TotalLines(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n2)
	assert.Equal(t, 5, idx2.TotalLines())
}
