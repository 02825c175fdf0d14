package transport

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KillSignalPath returns the file whose creation stops a running listener.
func KillSignalPath(dir string) string {
	return filepath.Join(dir, ".hydra", "signals", "kill")
}

// SendKill writes the kill signal file under dir.
func SendKill(dir string) error {
	path := KillSignalPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearKill removes a stale kill signal.
func ClearKill(dir string) error {
	err := os.Remove(KillSignalPath(dir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// WatchKill returns a context that is canceled when the kill signal file
// under dir is created or written, or when parent is done. A signal already
// present at start cancels immediately. Call the returned function to release
// the watcher.
func WatchKill(parent context.Context, dir string) (context.Context, context.CancelFunc, error) {
	signalsDir := filepath.Dir(KillSignalPath(dir))
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(parent)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		cancel()
		return nil, nil, err
	}

	if _, err := os.Stat(KillSignalPath(dir)); err == nil {
		cancel()
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) == "kill" && (event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
					cancel()
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ctx, cancel, nil
}
