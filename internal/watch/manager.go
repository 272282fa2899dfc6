package watch

import (
	"fmt"
	"sync"

	"github.com/forgeapp/forge/internal/config"
)

// Manager runs one inbox watcher per project.
type Manager struct {
	watchers map[string]*Watcher
	mu       sync.Mutex
}

func NewManager() *Manager {
	return &Manager{watchers: make(map[string]*Watcher)}
}

// Watch starts observing the project's inbox and returns its event channel.
// Watching the same project twice is an error.
func (m *Manager) Watch(p *config.Project) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watchers[p.ID]; ok {
		return nil, fmt.Errorf("project %s is already being watched", p.ID)
	}

	w, err := NewWatcher(p)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}

	m.watchers[p.ID] = w
	return w.Events(), nil
}

// Watching reports whether the project has an active watcher.
func (m *Manager) Watching(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[projectID]
	return ok
}

// Stop halts the project's watcher if one is running.
func (m *Manager) Stop(projectID string) {
	m.mu.Lock()
	w, ok := m.watchers[projectID]
	delete(m.watchers, projectID)
	m.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// StopAll halts every watcher.
func (m *Manager) StopAll() {
	m.mu.Lock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
