package logreader

import (
	"bufio"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// StreamReader is an in-memory line list grown by an appender goroutine
// reading a pipe in fixed-size batches (spec §4.3's stream variant).
// Reload is a no-op: streams cannot rewind.
type StreamReader struct {
	mu       sync.RWMutex
	lines    []string
	done     bool
	logger   *logrus.Logger
	doneChan chan struct{}
}

const streamBatchSize = 256

// NewStreamReader starts an appender goroutine over r. The goroutine exits
// when r returns EOF or another read error; Done() reports completion.
func NewStreamReader(r io.Reader, logger *logrus.Logger) *StreamReader {
	s := &StreamReader{logger: logger, doneChan: make(chan struct{})}
	go s.appendLoop(r)
	return s
}

func (s *StreamReader) appendLoop(r io.Reader) {
	defer close(s.doneChan)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	batch := make([]string, 0, streamBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.mu.Lock()
		s.lines = append(s.lines, batch...)
		s.mu.Unlock()
		batch = batch[:0]
	}

	for scanner.Scan() {
		batch = append(batch, scanner.Text())
		if len(batch) >= streamBatchSize {
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("stream reader: read error, treating as EOF")
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

// TotalLines returns the number of lines appended so far.
func (s *StreamReader) TotalLines() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// GetLine returns line n, if present.
func (s *StreamReader) GetLine(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n >= len(s.lines) {
		return "", false
	}
	return s.lines[n], true
}

// Done reports whether the appender has observed EOF.
func (s *StreamReader) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Reload is a no-op for streams: they cannot rewind, and growth is already
// reflected by the background appender.
func (s *StreamReader) Reload() (ReloadResult, error) {
	return ReloadResult{TotalLines: s.TotalLines()}, nil
}

// Close waits for the appender to finish (the caller is expected to have
// closed the underlying reader to unblock it) and releases nothing else —
// there is no file handle for StreamReader to own.
func (s *StreamReader) Close() error {
	<-s.doneChan
	return nil
}
