// Package sync tracks per-project deployment runs as a staged state machine
// and orchestrates them against a transfer.Transport.
package sync

import (
	"time"

	"github.com/forgeapp/forge/internal/transfer"
)

// Stage is the phase a project's current run is in.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageConnecting Stage = "connecting"
	StageAnalyzing  Stage = "analyzing"
	StageUploading  Stage = "uploading"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Active reports whether a run is in flight. Complete and error are resting
// states; a new run may start from either.
func (s Stage) Active() bool {
	switch s {
	case StageConnecting, StageAnalyzing, StageUploading:
		return true
	}
	return false
}

// Progress milestones. Uploads map into the band between
// progressAnalyzed and progressUploadsDone proportionally to settled files.
const (
	progressIdle        = 0
	progressConnecting  = 10
	progressAnalyzing   = 15
	progressAnalyzed    = 20
	progressUploadsDone = 90
	progressComplete    = 100

	uploadBand = progressUploadsDone - progressAnalyzed
)

// FileStatus is the per-file position within an uploading run.
type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileUploading FileStatus = "uploading"
	FileUploaded  FileStatus = "uploaded"
	FileError     FileStatus = "error"
)

// FileState is one tracked file in the current or last run.
type FileState struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
	Size   int64      `json:"size"`
}

// State is a snapshot of a project's sync status. Progress only moves
// forward within a run; Error is set only in the error stage. Files and
// Diff survive into the next run until analysis replaces them, so a failed
// connection still shows what the previous run knew.
type State struct {
	Stage     Stage                 `json:"stage"`
	Progress  int                   `json:"progress"`
	Files     []FileState           `json:"files,omitempty"`
	Diff      []transfer.FileChange `json:"diff,omitempty"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// DefaultState is what every project reports before its first run and after
// a reset.
func DefaultState() State {
	return State{Stage: StageIdle, Progress: progressIdle}
}

// UploadProgress maps settled uploads into the progress band.
func UploadProgress(completed, total int) int {
	if total <= 0 {
		return progressAnalyzed
	}
	if completed > total {
		completed = total
	}
	return progressAnalyzed + completed*uploadBand/total
}

func (s *State) clone() State {
	out := *s
	if s.Files != nil {
		out.Files = make([]FileState, len(s.Files))
		copy(out.Files, s.Files)
	}
	if s.Diff != nil {
		out.Diff = make([]transfer.FileChange, len(s.Diff))
		copy(out.Diff, s.Diff)
	}
	return out
}
