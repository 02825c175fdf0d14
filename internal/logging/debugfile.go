package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugFile is an append-only log file shared by every component.
// It is safe for concurrent use.
type DebugFile struct {
	mu   sync.Mutex
	file *os.File
}

// OpenDebugFile opens path for appending, creating parent directories.
func OpenDebugFile(path string) (*DebugFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	d := &DebugFile{file: f}
	fmt.Fprintf(d, "=== hydra debug log started at %s ===\n", time.Now().Format(time.RFC3339))
	return d, nil
}

// DefaultDebugPath returns the debug log location inside a project directory.
func DefaultDebugPath(dir string) string {
	return filepath.Join(dir, ".hydra", "logs", "hydra-debug.log")
}

// Write implements io.Writer and syncs after every write.
func (d *DebugFile) Write(p []byte) (int, error) {
	if d == nil || d.file == nil {
		return len(p), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, d.file.Sync()
}

// Close closes the file. Safe to call on a nil DebugFile.
func (d *DebugFile) Close() error {
	if d == nil || d.file == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.file.Close()
}
