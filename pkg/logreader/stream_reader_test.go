package logreader

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReaderAppendsAllLinesAndSignalsDone(t *testing.T) {
	pr, pw := io.Pipe()
	logger := newTestLogger()
	s := NewStreamReader(pr, logger)

	go func() {
		for i := 0; i < 10; i++ {
			io.WriteString(pw, "line "+string(rune('0'+i))+"\n")
		}
		pw.Close()
	}()

	require.Eventually(t, func() bool { return s.Done() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	assert.Equal(t, 10, s.TotalLines())
	for i := 0; i < 10; i++ {
		got, ok := s.GetLine(i)
		require.True(t, ok)
		assert.Equal(t, "line "+string(rune('0'+i)), got)
	}
	_, ok := s.GetLine(10)
	assert.False(t, ok)
}

func TestStreamReaderReloadIsNoop(t *testing.T) {
	r := strings.NewReader("a\nb\nc\n")
	logger := newTestLogger()
	s := NewStreamReader(r, logger)

	require.Eventually(t, func() bool { return s.Done() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())

	before, err := s.Reload()
	require.NoError(t, err)
	after, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, after.TotalLines)
}

func TestStreamReaderHandlesMoreThanOneBatch(t *testing.T) {
	var sb strings.Builder
	total := streamBatchSize*2 + 7
	for i := 0; i < total; i++ {
		sb.WriteString("x\n")
	}
	s := NewStreamReader(strings.NewReader(sb.String()), newTestLogger())

	require.Eventually(t, func() bool { return s.Done() }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	assert.Equal(t, total, s.TotalLines())
}

func TestStreamReaderSatisfiesReaderInterface(t *testing.T) {
	var _ Reader = (*StreamReader)(nil)
}
