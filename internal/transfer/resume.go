package transfer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// resumeJournalName is the per-project journal of interrupted uploads. The
// dot prefix keeps it out of local scans.
const resumeJournalName = ".forge-resume.json"

type resumeEntry struct {
	Size      int64     `json:"size"`
	StartedAt time.Time `json:"startedAt"`
}

// resumeJournal records files whose upload started but never completed, so
// the next run can append from where the remote left off instead of
// re-sending the whole file. An entry alone is not enough to resume: the
// uploader still verifies that the remote's current size is a proper prefix
// of the local file before seeking past it.
type resumeJournal struct {
	path string

	mu      sync.Mutex
	entries map[string]resumeEntry
}

// openResumeJournal loads the journal for a project root. A missing or
// unreadable journal simply means nothing is resumable.
func openResumeJournal(root string) *resumeJournal {
	j := &resumeJournal{
		path:    filepath.Join(root, resumeJournalName),
		entries: make(map[string]resumeEntry),
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		return j
	}
	_ = json.Unmarshal(data, &j.entries)
	return j
}

// begin marks relPath as in flight with its current local size.
func (j *resumeJournal) begin(relPath string, size int64) {
	j.mu.Lock()
	j.entries[relPath] = resumeEntry{Size: size, StartedAt: time.Now().UTC()}
	j.save()
	j.mu.Unlock()
}

// finish clears relPath after a completed upload.
func (j *resumeJournal) finish(relPath string) {
	j.mu.Lock()
	delete(j.entries, relPath)
	j.save()
	j.mu.Unlock()
}

// resumable reports whether relPath was left mid-upload by a previous run
// of a file with the same size. Diffs classify files by size, so a size
// change means different content and a restart from zero.
func (j *resumeJournal) resumable(relPath string, size int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[relPath]
	return ok && e.Size == size
}

// resumeOffset decides where an upload may continue: only when the journal
// marks the file in flight and the remote holds a strict prefix of it.
func (j *resumeJournal) resumeOffset(relPath string, localSize, remoteSize int64) int64 {
	if !j.resumable(relPath, localSize) {
		return 0
	}
	if remoteSize <= 0 || remoteSize >= localSize {
		return 0
	}
	return remoteSize
}

// save persists the journal, called under mu. Best effort: a failed write
// only costs the next run its resume points.
func (j *resumeJournal) save() {
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(j.path, data, 0644)
}
