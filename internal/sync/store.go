package sync

import (
	"sync"
	"time"

	"github.com/forgeapp/forge/internal/transfer"
)

const eventBufferSize = 16

// Event is broadcast to subscribers on every state change.
type Event struct {
	ProjectID string `json:"projectId"`
	State     State  `json:"state"`
}

// Store holds the sync state of every project, keyed by project ID. All
// accessors return copies. The store records whatever transition it is told;
// run exclusivity goes through BeginIfIdle.
type Store struct {
	states map[string]*State
	mu     sync.RWMutex

	eventSubs []chan Event
	eventMu   sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		states:    make(map[string]*State),
		eventSubs: make([]chan Event, 0),
	}
}

// Subscribe returns a channel receiving every state change. Slow consumers
// drop events rather than block mutations.
func (s *Store) Subscribe() <-chan Event {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	ch := make(chan Event, eventBufferSize)
	s.eventSubs = append(s.eventSubs, ch)
	return ch
}

func (s *Store) Unsubscribe(ch <-chan Event) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	for i, sub := range s.eventSubs {
		if sub == ch {
			close(sub)
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			break
		}
	}
}

func (s *Store) broadcast(projectID string, state State) {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()

	ev := Event{ProjectID: projectID, State: state}
	for _, sub := range s.eventSubs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Get returns a copy of the project's state. Unknown projects report the
// default idle state without allocating an entry.
func (s *Store) Get(projectID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[projectID]; ok {
		return st.clone()
	}
	return DefaultState()
}

// Busy reports whether a run is currently in flight for the project.
func (s *Store) Busy(projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[projectID]; ok {
		return st.Stage.Active()
	}
	return false
}

func (s *Store) getOrCreate(projectID string) *State {
	if st, ok := s.states[projectID]; ok {
		return st
	}
	st := DefaultState()
	st.UpdatedAt = time.Now()
	s.states[projectID] = &st
	return &st
}

// mutate applies fn under the write lock and broadcasts the result.
func (s *Store) mutate(projectID string, fn func(*State)) State {
	s.mu.Lock()
	st := s.getOrCreate(projectID)
	fn(st)
	st.UpdatedAt = time.Now()
	snapshot := st.clone()
	s.mu.Unlock()

	s.broadcast(projectID, snapshot)
	return snapshot
}

// Begin starts a new run: stage connecting, progress back to the connecting
// milestone, error cleared. Files and diff from the previous run are kept
// until analysis overwrites them.
func (s *Store) Begin(projectID string) State {
	return s.mutate(projectID, func(st *State) {
		st.Stage = StageConnecting
		st.Progress = progressConnecting
		st.Error = ""
	})
}

// BeginIfIdle starts a run only when none is in flight, with the check and
// the transition under one lock. It returns false when the project is busy.
func (s *Store) BeginIfIdle(projectID string) bool {
	s.mu.Lock()
	st := s.getOrCreate(projectID)
	if st.Stage.Active() {
		s.mu.Unlock()
		return false
	}
	st.Stage = StageConnecting
	st.Progress = progressConnecting
	st.Error = ""
	st.UpdatedAt = time.Now()
	snapshot := st.clone()
	s.mu.Unlock()

	s.broadcast(projectID, snapshot)
	return true
}

// SetStage moves the run to a new stage, bumping progress to the stage's
// milestone. Progress never moves backward within a run.
func (s *Store) SetStage(projectID string, stage Stage) State {
	return s.mutate(projectID, func(st *State) {
		st.Stage = stage
		switch stage {
		case StageConnecting:
			st.raiseProgress(progressConnecting)
		case StageAnalyzing:
			st.raiseProgress(progressAnalyzing)
		case StageUploading:
			st.raiseProgress(progressAnalyzed)
		}
	})
}

// SetProgress raises progress toward the given value. Values below the
// current progress or outside [0,100] are clamped away.
func (s *Store) SetProgress(projectID string, progress int) State {
	return s.mutate(projectID, func(st *State) {
		st.raiseProgress(progress)
	})
}

func (st *State) raiseProgress(p int) {
	if p > progressComplete {
		p = progressComplete
	}
	if p > st.Progress {
		st.Progress = p
	}
}

// SetDiff records the analysis result and replaces the tracked files with
// one pending entry per uploadable change.
func (s *Store) SetDiff(projectID string, diff []transfer.FileChange) State {
	return s.mutate(projectID, func(st *State) {
		st.Diff = make([]transfer.FileChange, len(diff))
		copy(st.Diff, diff)

		st.Files = st.Files[:0]
		for _, c := range diff {
			if c.Uploadable() {
				st.Files = append(st.Files, FileState{
					Path:   c.Path,
					Status: FilePending,
					Size:   c.LocalSize,
				})
			}
		}
		st.raiseProgress(progressAnalyzed)
	})
}

// SetFileStatus updates one tracked file. Unknown paths are ignored.
func (s *Store) SetFileStatus(projectID, path string, status FileStatus) State {
	return s.mutate(projectID, func(st *State) {
		for i := range st.Files {
			if st.Files[i].Path == path {
				st.Files[i].Status = status
				return
			}
		}
	})
}

// Complete finishes the run successfully.
func (s *Store) Complete(projectID string) State {
	return s.mutate(projectID, func(st *State) {
		st.Stage = StageComplete
		st.Progress = progressComplete
		st.Error = ""
	})
}

// Fail aborts the run with a message. Progress, files and diff are left as
// they were so the failure point stays visible.
func (s *Store) Fail(projectID, msg string) State {
	return s.mutate(projectID, func(st *State) {
		st.Stage = StageError
		st.Error = msg
	})
}

// Reset returns the project to the default idle state, dropping everything
// recorded about previous runs.
func (s *Store) Reset(projectID string) State {
	s.mu.Lock()
	delete(s.states, projectID)
	s.mu.Unlock()

	st := DefaultState()
	s.broadcast(projectID, st)
	return st
}

// All returns a copy of every tracked project state.
func (s *Store) All() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]State, len(s.states))
	for id, st := range s.states {
		out[id] = st.clone()
	}
	return out
}

// Close drops all subscribers and state.
func (s *Store) Close() {
	s.eventMu.Lock()
	for _, sub := range s.eventSubs {
		close(sub)
	}
	s.eventSubs = make([]chan Event, 0)
	s.eventMu.Unlock()

	s.mu.Lock()
	s.states = make(map[string]*State)
	s.mu.Unlock()
}
