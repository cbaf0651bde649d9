// Package registry discovers captured log sources and implements the
// PID-marker liveness protocol of spec.md §4.8: a capturer and a viewer
// coordinate through the filesystem without a daemon, surviving a capturer
// being SIGKILLed out from under its marker.
//
// Grounded on the directory-scanning/caching shape of the teacher's
// pkg/discovery/service_discovery.go (discover, cache, report additions)
// and the sweep-and-unlink pattern of pkg/cleanup/disk_manager.go, adapted
// from "scan for stale log files by age" to "scan for stale markers by
// liveness".
package registry

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/config"
	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// Registry resolves captured source names to paths and tracks liveness
// across one or more config.Roots (typically project then global, with
// project taking precedence per spec §6).
type Registry struct {
	mu     sync.Mutex
	roots  []config.Roots
	logger *logrus.Logger
}

// New builds a Registry over roots, in precedence order (project first).
func New(logger *logrus.Logger, roots ...config.Roots) *Registry {
	return &Registry{roots: roots, logger: logger}
}

// Source describes one discovered captured source.
type Source struct {
	Name    string
	LogPath string
	Roots   config.Roots
	Status  types.SourceStatus
}

// ValidateName enforces spec §4.8's name rules: non-empty, no path
// separators, no NUL, <= 255 chars, doesn't start with '.', none of ":*?".
func ValidateName(name string) error {
	if name == "" {
		return errors.InvalidNameError("validate_name", "name must not be empty")
	}
	if len(name) > 255 {
		return errors.InvalidNameError("validate_name", "name exceeds 255 characters")
	}
	if strings.HasPrefix(name, ".") {
		return errors.InvalidNameError("validate_name", "name must not start with '.'")
	}
	if strings.ContainsAny(name, string([]byte{0})) {
		return errors.InvalidNameError("validate_name", "name must not contain NUL")
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return errors.InvalidNameError("validate_name", "name must not contain path separators")
	}
	if strings.ContainsAny(name, ":*?") {
		return errors.InvalidNameError("validate_name", "name must not contain ':', '*' or '?'")
	}
	return nil
}

func markerPath(r config.Roots, name string) string {
	return filepath.Join(r.SourcesDir, name)
}

func logPath(r config.Roots, name string) string {
	return filepath.Join(r.DataDir, name+".log")
}

// readMarkerPID reads a marker file's decimal-PID-plus-newline contents.
func readMarkerPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.ParseError("read_marker", "marker file does not contain a decimal PID")
	}
	return pid, nil
}

// Check reports Active (marker exists and its PID is alive), Ended (marker
// missing, or present but the PID is dead), or None if the log file for
// name doesn't exist in r either.
func (reg *Registry) Check(r config.Roots, name string) types.SourceStatus {
	if _, err := os.Stat(logPath(r, name)); err != nil {
		return types.SourceStatusNone
	}
	pid, err := readMarkerPID(markerPath(r, name))
	if err != nil {
		metrics.MarkerChecksTotal.WithLabelValues("ended").Inc()
		return types.SourceStatusEnded
	}
	if processAlive(pid) {
		metrics.MarkerChecksTotal.WithLabelValues("active").Inc()
		return types.SourceStatusActive
	}
	metrics.MarkerChecksTotal.WithLabelValues("ended").Inc()
	return types.SourceStatusEnded
}

// CreateMarker creates a marker for name under r with the current process's
// PID, per spec §4.8's create protocol: O_CREATE|O_EXCL first; on EEXIST,
// read the existing marker — a live PID means "already active" (fail), a
// dead PID means stale (unlink and retry once).
func CreateMarker(r config.Roots, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := r.EnsureDirs(); err != nil {
		return err
	}
	path := markerPath(r, name)
	pid := os.Getpid()

	if err := tryCreateMarker(path, pid); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return errors.IOError("create_marker", "creating marker "+path, err)
	}

	existingPID, readErr := readMarkerPID(path)
	if readErr == nil && processAlive(existingPID) {
		return errors.MarkerCollisionError("create_marker", "source '"+name+"' already active (pid "+strconv.Itoa(existingPID)+")")
	}
	_ = os.Remove(path)
	if err := tryCreateMarker(path, pid); err != nil {
		return errors.IOError("create_marker", "creating marker "+path+" after stale cleanup", err)
	}
	return nil
}

func tryCreateMarker(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(pid) + "\n")
	return err
}

// RemoveMarker deletes name's marker under r, if present. Not finding it
// is not an error: the marker may already have been swept.
func RemoveMarker(r config.Roots, name string) error {
	if err := os.Remove(markerPath(r, name)); err != nil && !os.IsNotExist(err) {
		return errors.IOError("remove_marker", "removing marker for "+name, err)
	}
	return nil
}

// CleanupStaleMarkers sweeps r's sources directory and unlinks every
// marker whose PID is no longer alive, per spec §4.8's startup sweep.
// Called once at viewer startup for every scope in play.
func CleanupStaleMarkers(r config.Roots) (removed int, err error) {
	entries, readErr := os.ReadDir(r.SourcesDir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return 0, nil
		}
		return 0, errors.IOError("cleanup_stale_markers", "reading "+r.SourcesDir, readErr)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(r.SourcesDir, e.Name())
		pid, perr := readMarkerPID(path)
		if perr != nil || !processAlive(pid) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
				metrics.MarkersCleanedTotal.Inc()
			}
		}
	}
	return removed, nil
}

// Discover lists every *.log file across reg's roots (project roots
// shadow a global source of the same name) and reports its liveness.
func (reg *Registry) Discover() ([]Source, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	seen := map[string]bool{}
	var out []Source
	for _, r := range reg.roots {
		files, err := os.ReadDir(r.DataDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.IOError("discover", "reading "+r.DataDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".log") {
				continue
			}
			name := strings.TrimSuffix(f.Name(), ".log")
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Source{
				Name:    name,
				LogPath: logPath(r, name),
				Roots:   r,
				Status:  reg.Check(r, name),
			})
		}
	}
	return out, nil
}

// Delete removes an ended source's log file and any residual marker, but
// only when its path lies under one of reg's recognized data roots — a
// guard against deleting arbitrary user files reached via a crafted name.
func (reg *Registry) Delete(s Source) error {
	if s.Status == types.SourceStatusActive {
		return errors.New(errors.CodeInvalidName, "registry", "delete", "refusing to delete an active source").WithSeverity(errors.SeverityHigh)
	}
	recognized := false
	for _, r := range reg.roots {
		if r.DataDir == s.Roots.DataDir && filepath.Dir(filepath.Clean(s.LogPath)) == filepath.Clean(r.DataDir) {
			recognized = true
			break
		}
	}
	if !recognized {
		return errors.New(errors.CodeInvalidName, "registry", "delete", "path is not under a recognized data root").WithSeverity(errors.SeverityHigh)
	}
	if err := os.Remove(s.LogPath); err != nil && !os.IsNotExist(err) {
		return errors.IOError("delete", "removing "+s.LogPath, err)
	}
	return RemoveMarker(s.Roots, s.Name)
}
