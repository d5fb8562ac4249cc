package trigger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
)

// spoolSuffix marks trigger files in the spool directory. A file named
// "subj-1.run" requests a run for subject "subj-1".
const spoolSuffix = ".run"

// debounceInterval coalesces the event bursts editors and copy tools
// produce for a single file.
const debounceInterval = 100 * time.Millisecond

// WatcherConfig holds the spool watcher's collaborators.
type WatcherConfig struct {
	// Dir is the spool directory to watch. Created if missing.
	Dir string

	// Dispatcher admits the requests the watcher picks up.
	Dispatcher *Dispatcher

	// Logger is optional; nil means no logging.
	Logger *logging.Logger
}

// Watcher turns files dropped into a spool directory into run requests.
// Each trigger file is consumed exactly once: it is removed before its
// request is submitted.
type Watcher struct {
	dir        string
	dispatcher *Dispatcher
	logger     *logging.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a Watcher over the spool directory.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("trigger: Dir is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("trigger: Dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating spool directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating filesystem watcher")
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, "watching spool directory")
	}

	return &Watcher{
		dir:        cfg.Dir,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		watcher:    fsw,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start sweeps trigger files already in the spool, then begins watching
// for new ones.
func (w *Watcher) Start() {
	w.sweep()
	go w.watchLoop()
}

// Stop shuts the watcher down and waits for its loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
	<-w.doneCh
}

// sweep consumes trigger files left over from before the watcher ran.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("spool sweep failed", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.consume(filepath.Join(w.dir, entry.Name()))
	}
}

// watchLoop processes filesystem events with debouncing; many tools
// emit several events for a single dropped file.
func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	debounce := time.NewTimer(0)
	<-debounce.C // drain the initial fire

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			debounce.Reset(debounceInterval)

		case <-debounce.C:
			for path := range pending {
				w.consume(path)
			}
			clear(pending)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spool watch error", "error", err)
		}
	}
}

// consume removes a trigger file and submits its request. Files that
// are not shaped like triggers are left alone.
func (w *Watcher) consume(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, spoolSuffix) {
		return
	}
	subjectID := strings.TrimSuffix(base, spoolSuffix)
	if subjectID == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	// Remove first so a trigger fires at most one request even if
	// events for it arrive twice.
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("removing trigger file failed", "path", path, "error", err)
		}
		return
	}

	disposition, err := w.dispatcher.Submit(context.Background(), subjectID, "spool")
	if err != nil {
		w.logger.Warn("spool trigger not started", "subject", subjectID, "disposition", string(disposition), "error", err)
		return
	}
	w.logger.Info("spool trigger submitted", "subject", subjectID, "disposition", string(disposition))
}
