package phenology

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current catalogue and can be swapped while readers use it.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore returns a Store serving c.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the catalogue currently in effect.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Reload replaces the catalogue with the one at path. On error the previous
// catalogue stays in effect.
func (s *Store) Reload(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	s.current.Store(c)
	slog.Info("reloaded stage catalogue", "path", path, "stages", len(c.stages))
	return nil
}

// Watch reloads path whenever it changes until ctx is cancelled. The parent
// directory is watched so editors that replace the file atomically are
// picked up too.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	slog.Debug("watching stage catalogue", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.Reload(abs); err != nil {
				slog.Warn("ignoring invalid stage catalogue", "path", abs, "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("stage catalogue watcher error", "err", err)
		}
	}
}
