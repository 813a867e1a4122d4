package kubectl

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce     = 500 * time.Millisecond
	watchPollInterval = 5 * time.Second
)

// Watcher reloads the runner and fires a callback when the kubeconfig
// changes on disk. Uses fsnotify for instant detection plus a polling
// fallback to catch changes fsnotify misses (common on macOS after atomic
// writes).
type Watcher struct {
	runner   *Runner
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	onChange func()
}

// NewWatcher starts watching the runner's kubeconfig. onChange is invoked
// after each successful reload, debounced across rapid edits.
func NewWatcher(runner *Runner, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		runner:   runner,
		watcher:  fsw,
		stop:     make(chan struct{}),
		onChange: onChange,
	}

	path := runner.KubeconfigPath()
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch kubeconfig: %w", err)
	}
	// Also watch the directory (for editors that do atomic saves)
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		log.Printf("Warning: could not watch kubeconfig directory: %v", err)
	}

	go w.loop()
	log.Printf("Watching kubeconfig for changes: %s", path)
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
}

func (w *Watcher) reloadAndNotify() {
	log.Printf("Kubeconfig changed, reloading...")
	if err := w.runner.Reload(); err != nil {
		log.Printf("Error reloading kubeconfig: %v", err)
		return
	}

	// Re-add file watch — after atomic writes the old inode watch is dead.
	path := w.runner.KubeconfigPath()
	_ = w.watcher.Remove(path)
	if err := w.watcher.Add(path); err != nil {
		log.Printf("Warning: could not re-watch kubeconfig file: %v", err)
	}

	if w.onChange != nil {
		w.onChange()
	}
}

func (w *Watcher) loop() {
	path := w.runner.KubeconfigPath()

	var debounceTimer *time.Timer
	triggerReload := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(watchDebounce, w.reloadAndNotify)
	}

	pollTicker := time.NewTicker(watchPollInterval)
	defer pollTicker.Stop()
	var lastModTime time.Time
	if info, err := os.Stat(path); err == nil {
		lastModTime = info.ModTime()
	}

	for {
		select {
		case <-w.stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == path || filepath.Base(event.Name) == filepath.Base(path) {
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					// Update lastModTime so the poller doesn't double-trigger
					if info, err := os.Stat(path); err == nil {
						lastModTime = info.ModTime()
					}
					triggerReload()
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Kubeconfig watcher error: %v", err)
		case <-pollTicker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime() != lastModTime {
				lastModTime = info.ModTime()
				log.Printf("Kubeconfig change detected by poll (fsnotify missed)")
				triggerReload()
			}
		}
	}
}
