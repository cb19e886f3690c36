package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edusync/idnsync/pkg/metrics"
)

// Marker touches the liveness file. The scheduler calls Touch at the
// start of every round; an orchestrator watching the file's mtime can
// tell a hung process from a slow one.
type Marker struct {
	path string
}

// NewMarker creates a marker for the given path.
func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Path returns the liveness file location.
func (m *Marker) Path() string {
	return m.path
}

// Touch creates the file if missing and bumps its mtime.
func (m *Marker) Touch() error {
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create liveness dir: %w", err)
	}

	now := time.Now()
	if err := os.Chtimes(m.path, now, now); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("touch liveness file: %w", err)
		}
		f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create liveness file: %w", err)
		}
		return f.Close()
	}
	return nil
}

// FileChecker reports healthy while the liveness file is fresh
type FileChecker struct {
	// Path is the liveness file location
	Path string

	// MaxAge is how old the file may get before the check fails
	MaxAge time.Duration
}

// NewFileChecker creates a freshness check over the liveness file
func NewFileChecker(path string, maxAge time.Duration) *FileChecker {
	return &FileChecker{Path: path, MaxAge: maxAge}
}

// Check performs the freshness check
func (f *FileChecker) Check(ctx context.Context) Result {
	start := time.Now()

	fi, err := os.Stat(f.Path)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("liveness file missing: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	age := time.Since(fi.ModTime())
	metrics.LivenessAge.Set(age.Seconds())
	if age > f.MaxAge {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("liveness file is %s old, limit %s", age.Round(time.Second), f.MaxAge),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("touched %s ago", age.Round(time.Second)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (f *FileChecker) Type() CheckType {
	return CheckTypeFile
}

// Name identifies the checker
func (f *FileChecker) Name() string {
	return "liveness-file"
}
