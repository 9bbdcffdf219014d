package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// ImportedDir is the subdirectory that successfully imported files move to.
const ImportedDir = "imported"

// Watcher imports YAML profiles dropped into a directory. A file is
// imported once it has been quiet for the settle time; bursts of events for
// the same file collapse into one import.
type Watcher struct {
	svc    *Service
	dir    string
	settle time.Duration

	group singleflight.Group

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher for svc's configured directory.
func NewWatcher(svc *Service) *Watcher {
	settle := svc.cfg.Settle
	if settle <= 0 {
		settle = DefaultConfig().Settle
	}
	return &Watcher{
		svc:    svc,
		dir:    svc.cfg.WatchDir,
		settle: settle,
		timers: make(map[string]*time.Timer),
	}
}

// Run imports files already present, then watches for new ones until ctx
// is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.dir == "" {
		<-ctx.Done()
		return nil
	}
	if err := os.MkdirAll(filepath.Join(w.dir, ImportedDir), 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if entries, err := os.ReadDir(w.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isProfileFile(e.Name()) {
				w.schedule(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isProfileFile(event.Name) {
				w.svc.log.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				w.schedule(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.svc.log.Errorf("fsnotify error=%v", err)
		}
	}
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.importFile(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// importFile imports path and moves it into the imported directory.
// Concurrent calls for the same path share one import.
func (w *Watcher) importFile(path string) {
	_, err, _ := w.group.Do(path, func() (interface{}, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		p, err := w.svc.Import(data)
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(w.dir, ImportedDir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			w.svc.log.Warnf("move imported %s: %v", path, err)
		}
		return p, nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.svc.log.Errorf("import %s: %v", filepath.Base(path), err)
	}
}

func isProfileFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
