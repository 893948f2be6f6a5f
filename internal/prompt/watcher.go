package prompt

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kazz187/novelguild/internal/persona"
)

// DebounceInterval lets bursts of editor writes settle before the cache
// is invalidated.
const DebounceInterval = 100 * time.Millisecond

// Invalidator is the cache surface the watcher drives.
type Invalidator interface {
	Invalidate(id persona.ID)
	InvalidateAll()
}

// Watcher invalidates cached instructions when files under a prompt
// directory change.
type Watcher struct {
	dir   string
	cache Invalidator

	mu      sync.Mutex
	pending map[persona.ID]bool
	all     bool
	timer   *time.Timer
}

func NewWatcher(dir string, cache Invalidator) *Watcher {
	return &Watcher{dir: dir, cache: cache, pending: map[persona.ID]bool{}}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	slog.InfoContext(ctx, "prompt: watching for changes", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						slog.WarnContext(ctx, "prompt: watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "prompt: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, name string) {
	rel, err := filepath.Rel(w.dir, name)
	if err != nil {
		rel = name
	}
	id, ok := AffectedPersona(filepath.ToSlash(rel))

	w.mu.Lock()
	defer w.mu.Unlock()
	if ok {
		w.pending[id] = true
	} else {
		w.all = true
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(DebounceInterval, func() { w.flush(ctx) })
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	all, pending := w.all, w.pending
	w.all, w.pending = false, map[persona.ID]bool{}
	w.mu.Unlock()

	if all {
		w.cache.InvalidateAll()
		slog.InfoContext(ctx, "prompt: cache cleared")
		return
	}
	for id := range pending {
		w.cache.Invalidate(id)
		slog.InfoContext(ctx, "prompt: cache invalidated", "persona", id)
	}
}

// AffectedPersona maps a prompt directory relative path to the single
// persona it belongs to. Shared or unrecognized paths affect everyone.
func AffectedPersona(rel string) (persona.ID, bool) {
	parts := strings.Split(rel, "/")
	switch {
	case len(parts) == 2 && parts[0] == legacyRoot:
		name := parts[1]
		for _, suffix := range []string{".oes.md", ".prompt.md"} {
			if id := persona.ID(strings.TrimSuffix(name, suffix)); name != string(id) && id.Valid() {
				return id, true
			}
		}
	case len(parts) >= 2 && parts[0] == roleRoot:
		for _, id := range persona.IDs {
			if id.ModularDir() == parts[1] {
				return id, true
			}
		}
	}
	return "", false
}
