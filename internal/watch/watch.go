// Package watch observes each project's inbox directory for dropped files.
// Events are debounced per path so a file still being written surfaces once,
// after it settles.
package watch

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/utils"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 200 * time.Millisecond
)

// temp extensions browsers and download managers use while a file is in
// flight
var skipSuffixes = []string{".tmp", ".crdownload", ".part", ".partial"}

// Event is a settled file in a project's inbox.
type Event struct {
	ProjectID string
	Path      string
}

// Watcher observes one project's inbox directory.
type Watcher struct {
	projectID string
	dir       string

	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup

	debounceTimeout time.Duration
	pendingMu       sync.Mutex
	pendingTimers   map[string]*time.Timer
	closed          bool

	log *slog.Logger
}

// NewWatcher builds a watcher for the project's inbox. The directory is
// created if missing.
func NewWatcher(p *config.Project) (*Watcher, error) {
	dir := p.InboxDir()
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Watcher{
		projectID:       p.ID,
		dir:             dir,
		done:            make(chan struct{}),
		debounceTimeout: defaultDebounceTimeout,
		pendingTimers:   make(map[string]*time.Timer),
		log:             slog.Default().With("component", "watch", "project", p.ID),
	}, nil
}

// SetDebounceTimeout overrides the settle delay. Only valid before Start.
func (w *Watcher) SetDebounceTimeout(d time.Duration) {
	w.debounceTimeout = d
}

func (w *Watcher) Start() error {
	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	if err := notify.Watch(w.dir, w.rawEvents, notify.Create|notify.Write); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.log.Info("inbox watcher started", "dir", w.dir)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	notify.Stop(w.rawEvents)

	// closed gates pending flush timers away from the events channel
	w.pendingMu.Lock()
	w.closed = true
	for path, timer := range w.pendingTimers {
		timer.Stop()
		delete(w.pendingTimers, path)
	}
	w.pendingMu.Unlock()

	w.wg.Wait()
	close(w.events)
	w.log.Info("inbox watcher stopped")
}

// Events delivers settled inbox files. The channel closes on Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// shouldSkip filters hidden files and in-flight temp files.
func shouldSkip(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if shouldSkip(ev.Path()) {
				continue
			}
			w.debounce(ev.Path())
		}
	}
}

// debounce restarts the per-path timer so a burst of write events emits one
// event once the file stops changing.
func (w *Watcher) debounce(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if timer, ok := w.pendingTimers[path]; ok {
		timer.Stop()
	}
	w.pendingTimers[path] = time.AfterFunc(w.debounceTimeout, func() {
		w.flush(path)
	})
}

func (w *Watcher) flush(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.closed {
		return
	}
	delete(w.pendingTimers, path)

	if !utils.FileExists(path) {
		return
	}

	select {
	case w.events <- Event{ProjectID: w.projectID, Path: path}:
		w.log.Debug("inbox file", "path", path)
	default:
		w.log.Warn("inbox event dropped", "reason", "channel full", "path", path)
	}
}
