package filter

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/columnindex"
	"github.com/lazytail-go/lazytail/pkg/logreader"
	"github.com/lazytail-go/lazytail/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return l
}

func newTestTracer(t *testing.T) *tracing.Provider {
	logger := newTestLogger()
	tp := tracing.New(logger)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return tp
}

func writeLogFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.txt")
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, ch <-chan Progress, timeout time.Duration) []Progress {
	t.Helper()
	var out []Progress
	deadline := time.After(timeout)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, p)
		case <-deadline:
			t.Fatal("timed out waiting for progress")
		}
	}
}

func finalMatches(msgs []Progress) ([]int, bool) {
	var matches []int
	for _, m := range msgs {
		matches = append(matches, m.Matches...)
		if m.Kind == KindComplete {
			return matches, true
		}
	}
	return matches, false
}

func TestScenarioA_PlainFilterFiveLines(t *testing.T) {
	lines := []string{"info start", "error one", "info middle", "error two", "info end"}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	r, err := logreader.Open(path, logger, tp, 2)
	require.NoError(t, err)
	defer r.Close()

	tok := NewCancelToken(context.Background())
	ch, err := RunLineByLine(context.Background(), r, Request{Pattern: "error", Mode: types.MatchPlain}, tok, logger, tp)
	require.NoError(t, err)

	msgs := collect(t, ch, 2*time.Second)
	matches, complete := finalMatches(msgs)
	require.True(t, complete)
	assert.Equal(t, []int{1, 3}, matches)
}

func TestRunLineByLineRegex(t *testing.T) {
	lines := []string{"code=200", "code=404", "code=500", "code=201"}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	r, err := logreader.Open(path, logger, tp, 3)
	require.NoError(t, err)
	defer r.Close()

	tok := NewCancelToken(context.Background())
	ch, err := RunLineByLine(context.Background(), r, Request{Pattern: `code=[45]\d\d`, Mode: types.MatchRegex, CaseSensitive: true}, tok, logger, tp)
	require.NoError(t, err)

	matches, complete := finalMatches(collect(t, ch, 2*time.Second))
	require.True(t, complete)
	assert.Equal(t, []int{1, 2}, matches)
}

func TestCancellationStopsEarlyWithoutComplete(t *testing.T) {
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = "line " + strconv.Itoa(i)
	}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	r, err := logreader.Open(path, logger, tp, 10)
	require.NoError(t, err)
	defer r.Close()

	tok := NewCancelToken(context.Background())
	ch, err := RunLineByLine(context.Background(), r, Request{Pattern: "line", Mode: types.MatchPlain}, tok, logger, tp)
	require.NoError(t, err)
	tok.Cancel()

	for p := range ch {
		assert.NotEqual(t, KindComplete, p.Kind)
	}
	assert.True(t, tok.Cancelled())
}

func TestRunSIMDCaseSensitive(t *testing.T) {
	lines := []string{"alpha", "beta ERROR here", "gamma", "delta error again"}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	tok := NewCancelToken(context.Background())
	ch, err := RunSIMD(context.Background(), path, Request{Pattern: "error", CaseSensitive: true}, tok, logger, tp)
	require.NoError(t, err)

	matches, complete := finalMatches(collect(t, ch, 2*time.Second))
	require.True(t, complete)
	assert.Equal(t, []int{3}, matches)
}

func TestRunSIMDCaseInsensitive(t *testing.T) {
	lines := []string{"alpha", "beta ERROR here", "gamma", "delta error again"}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	tok := NewCancelToken(context.Background())
	ch, err := RunSIMD(context.Background(), path, Request{Pattern: "error", CaseSensitive: false}, tok, logger, tp)
	require.NoError(t, err)

	matches, complete := finalMatches(collect(t, ch, 2*time.Second))
	require.True(t, complete)
	assert.Equal(t, []int{1, 3}, matches)
}

func TestRunIndexedNarrowsByHint(t *testing.T) {
	lines := []string{
		`{"level":"info","msg":"start"}`,
		`{"level":"error","msg":"boom"}`,
		`{"level":"info","msg":"middle"}`,
		`{"level":"error","msg":"boom again"}`,
	}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	require.NoError(t, columnindex.BuildOrRefresh(context.Background(), path, logger))

	r, err := logreader.Open(path, logger, tp, 10)
	require.NoError(t, err)
	defer r.Close()

	idx := columnindex.Open(path, logger, tp)
	require.NotNil(t, idx)
	defer idx.Close()

	tok := NewCancelToken(context.Background())
	hint := &IndexHint{Mask: types.FlagSeverityMask, Want: uint32(types.SeverityError)}
	ch, err := RunIndexed(context.Background(), r, idx, Request{Pattern: "boom", Mode: types.MatchPlain, Hint: hint}, tok, logger, tp)
	require.NoError(t, err)

	matches, complete := finalMatches(collect(t, ch, 2*time.Second))
	require.True(t, complete)
	assert.Equal(t, []int{1, 3}, matches)
}

func TestRunSharedReleasesLockBetweenBatches(t *testing.T) {
	lines := []string{"alpha", "beta error", "gamma", "delta error"}
	path := writeLogFile(t, lines)
	logger := newTestLogger()
	tp := newTestTracer(t)

	r, err := logreader.Open(path, logger, tp, 5)
	require.NoError(t, err)
	defer r.Close()

	var mu sync.Mutex
	tok := NewCancelToken(context.Background())
	ch, err := RunShared(context.Background(), r, &mu, Request{Pattern: "error", Mode: types.MatchPlain}, tok, logger, tp)
	require.NoError(t, err)

	matches, complete := finalMatches(collect(t, ch, 2*time.Second))
	require.True(t, complete)
	assert.Equal(t, []int{1, 3}, matches)
}

func TestCompileMatcherRejectsInvalidRegex(t *testing.T) {
	_, err := CompileMatcher(Request{Pattern: "(", Mode: types.MatchRegex})
	assert.Error(t, err)
}
