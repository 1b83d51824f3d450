package exposure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileDirectory is an exposure directory kept in a local JSON file. It is
// useful for tests and for deployments that sync the list out of band.
type FileDirectory struct {
	path string
	mu   sync.Mutex
}

// NewFileDirectory creates a directory backed by path. The file need not exist.
func NewFileDirectory(path string) (*FileDirectory, error) {
	if path == "" {
		return nil, errors.New("exposure file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve exposure file: %w", err)
	}
	return &FileDirectory{path: abs}, nil
}

// Path returns the absolute file path.
func (d *FileDirectory) Path() string {
	return d.path
}

// FetchExposedIDs reads the list. A missing file is an empty list.
func (d *FileDirectory) FetchExposedIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked()
}

// PublishExposedIDs merges ids into the file.
func (d *FileDirectory) PublishExposedIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.readLocked()
	if err != nil {
		return err
	}
	merged := normalizeIDs(append(existing, ids...))

	raw, err := json.MarshalIndent(exposureList{IDs: merged}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal exposures: %w", err)
	}
	raw = append(raw, '\n')

	if err := os.MkdirAll(filepath.Dir(d.path), 0o700); err != nil {
		return fmt.Errorf("create exposure directory: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write exposures: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace exposures: %w", err)
	}
	return nil
}

func (d *FileDirectory) readLocked() ([]string, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read exposures: %w", err)
	}
	return decodeList(raw)
}

// Watch calls onChange whenever the file is created, written, replaced or
// removed. It blocks until ctx is done.
func (d *FileDirectory) Watch(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return errors.New("exposure change callback is required")
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create exposure directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Infof("watching exposure file %s", d.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != d.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Debugf("exposure file changed: %s", event.Op)
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("exposure watcher error: %v", err)
		}
	}
}
