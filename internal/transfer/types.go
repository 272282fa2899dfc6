// Package transfer implements the remote transport boundary: connection
// checks, local/remote diffing and parallel uploads over FTP, FTPS and SFTP.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgeapp/forge/internal/config"
)

var (
	ErrNotConnected  = errors.New("transfer: not connected")
	ErrTooManyErrors = errors.New("transfer: aborted after repeated upload failures")
)

// ChangeStatus classifies a file in the local/remote diff.
type ChangeStatus string

const (
	StatusAdded     ChangeStatus = "added"
	StatusModified  ChangeStatus = "modified"
	StatusDeleted   ChangeStatus = "deleted"
	StatusUnchanged ChangeStatus = "unchanged"
)

// FileChange is one entry in a preview diff. Sizes are in bytes; RemoteSize
// is zero for added files and LocalSize is zero for deleted ones.
type FileChange struct {
	Path       string       `json:"path"`
	Status     ChangeStatus `json:"status"`
	LocalSize  int64        `json:"localSize"`
	RemoteSize int64        `json:"remoteSize"`
}

// Report is the outcome of a sync run as observed by the transport.
type Report struct {
	Success       bool     `json:"success"`
	FilesUploaded int      `json:"filesUploaded"`
	FilesDeleted  int      `json:"filesDeleted"`
	Errors        []string `json:"errors,omitempty"`
}

// FileEvent is emitted twice per file: once when its upload begins
// (Started set, Err always nil) and once as it settles.
type FileEvent struct {
	Path    string
	Started bool
	Err     error
}

// ProgressFunc receives upload progress. completed counts settled files
// (success or failure) and total is the number of files queued. Start
// events carry the count as of their emission and never advance it.
type ProgressFunc func(completed, total int, ev FileEvent)

// Transport moves files to a remote host. Implementations are not safe for
// concurrent use; callers serialize runs per project.
type Transport interface {
	// TestConnection dials the remote and verifies credentials without
	// transferring anything.
	TestConnection(ctx context.Context) error

	// Preview computes the full diff between the local tree and the remote
	// path. It is read only and idempotent.
	Preview(ctx context.Context) ([]FileChange, error)

	// Sync uploads added and modified files from the diff. Deleted entries
	// are reported but never removed from the remote. When dryRun is set no
	// bytes are transferred and the report reflects what would happen.
	Sync(ctx context.Context, diff []FileChange, dryRun bool, onProgress ProgressFunc) (*Report, error)

	// Close releases the underlying connection.
	Close() error
}

// New returns a transport for the remote's protocol. The ignore matcher may
// be nil when the project has no ignore file.
func New(remote *config.Remote, localPath string, ignore *Ignore) (Transport, error) {
	switch remote.Protocol {
	case config.ProtocolFTP, config.ProtocolFTPS:
		return newFTPTransport(remote, localPath, ignore), nil
	case config.ProtocolSFTP:
		return newSFTPTransport(remote, localPath, ignore), nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownProtocol, remote.Protocol)
	}
}

// Uploadable reports whether a change requires bytes on the wire.
func (c FileChange) Uploadable() bool {
	return c.Status == StatusAdded || c.Status == StatusModified
}

// CountUploadable returns how many entries in the diff need uploading.
func CountUploadable(diff []FileChange) int {
	n := 0
	for _, c := range diff {
		if c.Uploadable() {
			n++
		}
	}
	return n
}
