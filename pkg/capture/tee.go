// Package capture implements spec.md §4.9's capture tee: read stdin,
// append each line to a named log, echo it to stdout, and maintain a PID
// marker for the duration of the run.
//
// Grounded on internal/monitors/file_monitor.go's context-cancellable,
// defer-cleanup shutdown shape (signal-aware Stop, graceful drain) with the
// byte flow direction inverted: this package writes a log rather than
// tailing one.
package capture

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/config"
	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/registry"
)

// Tee reads lines from an input reader, appends each to a named log file,
// echoes it to an output writer, and keeps a liveness marker alive until
// the context is cancelled, the input hits EOF, or a write to the log
// fails.
type Tee struct {
	name   string
	roots  config.Roots
	logger *logrus.Logger

	in  io.Reader
	out io.Writer
}

// New builds a Tee for name under roots. name is validated per spec §4.8's
// rules before any file operation, per spec §7's "reject before any file
// operation" policy; Run, not New, creates roots' directories if absent.
func New(name string, roots config.Roots, in io.Reader, out io.Writer, logger *logrus.Logger) (*Tee, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, err
	}
	return &Tee{name: name, roots: roots, logger: logger, in: in, out: out}, nil
}

// Run starts the capture marker and tees lines until ctx is cancelled or
// stdin reaches EOF. Exit code convention (spec §6): callers should treat
// a MARKER_COLLISION error as a non-zero-exit "already active" failure.
func (t *Tee) Run(ctx context.Context) error {
	if err := t.roots.EnsureDirs(); err != nil {
		return err
	}
	if err := registry.CreateMarker(t.roots, t.name); err != nil {
		return err
	}
	defer registry.RemoveMarker(t.roots, t.name)

	logPath := filepath.Join(t.roots.DataDir, t.name+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.IOError("run", "opening "+logPath+" for append", err)
	}
	defer f.Close()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- t.pump(f) }()

	select {
	case <-sigCtx.Done():
		return nil
	case err := <-done:
		return err
	}
}

// pump is the blocking read-append-echo loop (spec §4.9's two numbered
// steps). Write errors to the log abort the loop; stdout errors are
// tolerated since a downstream consumer of the echo may simply close its
// pipe.
func (t *Tee) pump(logFile *os.File) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	writer := bufio.NewWriter(logFile)
	out := bufio.NewWriter(t.out)

	for scanner.Scan() {
		line := scanner.Text()

		if _, err := writer.WriteString(line + "\n"); err != nil {
			return errors.IOError("pump", "appending to log", err)
		}
		if err := writer.Flush(); err != nil {
			return errors.IOError("pump", "flushing log", err)
		}

		if _, err := out.WriteString(line + "\n"); err == nil {
			out.Flush()
		}
		metrics.CaptureLinesTotal.WithLabelValues(t.name).Inc()
		metrics.CaptureBytesTotal.WithLabelValues(t.name).Add(float64(len(line) + 1))
	}
	return nil
}
