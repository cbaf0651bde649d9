package combined

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/columnindex"
	"github.com/lazytail-go/lazytail/pkg/logreader"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return l
}

func openFileSource(t *testing.T, name string, lines []string) Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".log")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	logger := newTestLogger()
	tp := tracing.New(logger)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	r, err := logreader.Open(path, logger, tp, 100)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return Source{Name: name, Reader: r}
}

// openTimestampedSource builds a two-line file-backed source whose columnar
// index reports exactly the given per-line microsecond timestamps.
func openTimestampedSource(t *testing.T, name string, lines []string, timestamps []uint64) Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".log")
	var offsets []uint64
	var offset uint64
	var content strings.Builder
	for _, l := range lines {
		offsets = append(offsets, offset)
		content.WriteString(l + "\n")
		offset += uint64(len(l) + 1)
	}
	require.NoError(t, os.WriteFile(path, []byte(content.String()), 0o644))

	logger := newTestLogger()
	w := columnindex.NewWriter(path, logger)
	for i, off := range offsets {
		w.AppendLine(off, 0, timestamps[i])
	}
	require.NoError(t, w.Flush(offset))

	tp := tracing.New(logger)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	r, err := logreader.Open(path, logger, tp, 100)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	idx := columnindex.Open(path, logger, tp)
	require.NotNil(t, idx)
	t.Cleanup(func() { idx.Close() })

	return Source{Name: name, Reader: r, IndexReader: idx}
}

// TestScenarioG_CombinedReaderOrdering covers spec §8 scenario G: two
// sub-sources with timestamps [100,300] and [200,400] interleave into
// virtual order (src0,line0)=100, (src1,line0)=200, (src0,line1)=300,
// (src1,line1)=400.
func TestScenarioG_CombinedReaderOrdering(t *testing.T) {
	src0 := openTimestampedSource(t, "src0", []string{"s0l0", "s0l1"}, []uint64{100, 300})
	src1 := openTimestampedSource(t, "src1", []string{"s1l0", "s1l1"}, []uint64{200, 400})

	r := New([]Source{src0, src1})
	require.Equal(t, 4, r.TotalLines())

	expectName := []string{"src0", "src1", "src0", "src1"}
	expectLine := []string{"s0l0", "s1l0", "s0l1", "s1l1"}
	for i := range expectName {
		name, ok := r.SourceName(i)
		require.True(t, ok)
		assert.Equal(t, expectName[i], name)
		line, ok := r.GetLine(i)
		require.True(t, ok)
		assert.Equal(t, expectLine[i], line)
	}
}

func TestCombinedReaderTotalLines(t *testing.T) {
	sources := []Source{
		openFileSource(t, "a", []string{"a1", "a2", "a3"}),
		openFileSource(t, "b", []string{"b1", "b2"}),
	}
	r := New(sources)
	assert.Equal(t, 5, r.TotalLines())
}

func TestCombinedReaderGetLineStableOrderWithoutTimestamps(t *testing.T) {
	sources := []Source{
		openFileSource(t, "a", []string{"a1", "a2"}),
		openFileSource(t, "b", []string{"b1"}),
	}
	r := New(sources)

	line, ok := r.GetLine(0)
	require.True(t, ok)
	assert.Equal(t, "a1", line)
	line, ok = r.GetLine(1)
	require.True(t, ok)
	assert.Equal(t, "a2", line)
	line, ok = r.GetLine(2)
	require.True(t, ok)
	assert.Equal(t, "b1", line)
	_, ok = r.GetLine(3)
	assert.False(t, ok)
}

func TestCombinedReaderSourceName(t *testing.T) {
	sources := []Source{
		openFileSource(t, "api", []string{"line1"}),
		openFileSource(t, "web", []string{"line2"}),
	}
	r := New(sources)

	name, ok := r.SourceName(0)
	require.True(t, ok)
	assert.Equal(t, "api", name)
	name, ok = r.SourceName(1)
	require.True(t, ok)
	assert.Equal(t, "web", name)
	_, ok = r.SourceName(2)
	assert.False(t, ok)
}

func TestCombinedReaderEmptySources(t *testing.T) {
	sources := []Source{openFileSource(t, "empty", nil)}
	r := New(sources)
	assert.Equal(t, 0, r.TotalLines())
}

func TestCombinedReaderReloadPicksUpGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	require.NoError(t, os.WriteFile(path, []byte("a1\n"), 0o644))

	logger := newTestLogger()
	tp := tracing.New(logger)
	defer tp.Shutdown(context.Background())

	fr, err := logreader.Open(path, logger, tp, 100)
	require.NoError(t, err)
	defer fr.Close()

	r := New([]Source{{Name: "a", Reader: fr}})
	assert.Equal(t, 1, r.TotalLines())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("a2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = r.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalLines())
	line, ok := r.GetLine(1)
	require.True(t, ok)
	assert.Equal(t, "a2", line)
}
