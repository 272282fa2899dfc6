// Package history keeps per-project snapshots of the local tree so a
// deployment can be compared against or rolled back to an earlier state.
// Metadata lives in sqlite; file contents are copied into a backup
// directory per snapshot.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/transfer"
	"github.com/forgeapp/forge/internal/utils"
)

// maxSnapshots is how many snapshots are kept per project. Older ones are
// pruned, backups included.
const maxSnapshots = 10

var ErrSnapshotNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	file_count  INTEGER NOT NULL,
	total_size  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_project ON snapshots(project_id, created_at DESC);

CREATE TABLE IF NOT EXISTS snapshot_files (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	hash        TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, path)
);
`

// Snapshot is the stored metadata of one capture.
type Snapshot struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"projectId"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	FileCount   int       `db:"file_count" json:"fileCount"`
	TotalSize   int64     `db:"total_size" json:"totalSize"`
}

// File is one captured file within a snapshot.
type File struct {
	SnapshotID string `db:"snapshot_id" json:"-"`
	Path       string `db:"path" json:"path"`
	Size       int64  `db:"size" json:"size"`
	Hash       string `db:"hash" json:"hash"`
}

// Diff lists path-level differences between two snapshots, computed by
// content hash.
type Diff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Service manages snapshots for all projects.
type Service struct {
	db        *sqlx.DB
	backupDir string
	log       *slog.Logger
}

func NewService(conn *sqlx.DB, backupDir string) (*Service, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &Service{
		db:        conn,
		backupDir: backupDir,
		log:       slog.Default().With("component", "history"),
	}, nil
}

func (s *Service) snapshotDir(projectID, snapshotID string) string {
	return filepath.Join(s.backupDir, projectID, snapshotID)
}

// Create captures the project's local tree into a new snapshot and prunes
// old ones past the retention limit.
func (s *Service) Create(ctx context.Context, p *config.Project, description string) (*Snapshot, error) {
	files, err := transfer.ScanLocal(p.LocalPath, transfer.NewIgnore(p.LocalPath))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:          uuid.NewString(),
		ProjectID:   p.ID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		FileCount:   len(files),
	}

	dir := s.snapshotDir(p.ID, snap.ID)
	records := make([]File, 0, len(files))
	for _, f := range files {
		src := filepath.Join(p.LocalPath, filepath.FromSlash(f.RelPath))
		hash, err := utils.FileHash(src)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", f.RelPath, err)
		}
		if err := utils.CopyFile(src, filepath.Join(dir, filepath.FromSlash(f.RelPath))); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("backup %s: %w", f.RelPath, err)
		}
		records = append(records, File{
			SnapshotID: snap.ID,
			Path:       f.RelPath,
			Size:       f.Size,
			Hash:       hash,
		})
		snap.TotalSize += f.Size
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExec(
		`INSERT INTO snapshots (id, project_id, description, created_at, file_count, total_size)
		 VALUES (:id, :project_id, :description, :created_at, :file_count, :total_size)`, snap); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	for _, rec := range records {
		if _, err := tx.NamedExec(
			`INSERT INTO snapshot_files (snapshot_id, path, size, hash)
			 VALUES (:snapshot_id, :path, :size, :hash)`, rec); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s.log.Info("snapshot created",
		"project", p.ID, "snapshot", snap.ID,
		"files", snap.FileCount, "size", humanize.Bytes(uint64(snap.TotalSize)))

	if err := s.prune(ctx, p.ID); err != nil {
		s.log.Warn("snapshot prune failed", "project", p.ID, "error", err)
	}
	return snap, nil
}

// List returns the project's snapshots, newest first.
func (s *Service) List(ctx context.Context, projectID string) ([]Snapshot, error) {
	snaps := []Snapshot{}
	err := s.db.SelectContext(ctx, &snaps,
		`SELECT * FROM snapshots WHERE project_id = ? ORDER BY created_at DESC, id`, projectID)
	return snaps, err
}

// Get returns one snapshot with its file manifest.
func (s *Service) Get(ctx context.Context, snapshotID string) (*Snapshot, []File, error) {
	var snap Snapshot
	err := s.db.GetContext(ctx, &snap, `SELECT * FROM snapshots WHERE id = ?`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	files := []File{}
	if err := s.db.SelectContext(ctx, &files,
		`SELECT * FROM snapshot_files WHERE snapshot_id = ? ORDER BY path`, snapshotID); err != nil {
		return nil, nil, err
	}
	return &snap, files, nil
}

// Compare diffs two snapshots by content hash. Paths present only in the
// newer snapshot are added, only in the older removed.
func (s *Service) Compare(ctx context.Context, oldID, newID string) (*Diff, error) {
	_, oldFiles, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	_, newFiles, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}

	oldByPath := make(map[string]string, len(oldFiles))
	for _, f := range oldFiles {
		oldByPath[f.Path] = f.Hash
	}

	diff := &Diff{}
	seen := make(map[string]struct{}, len(newFiles))
	for _, f := range newFiles {
		seen[f.Path] = struct{}{}
		hash, ok := oldByPath[f.Path]
		switch {
		case !ok:
			diff.Added = append(diff.Added, f.Path)
		case hash != f.Hash:
			diff.Changed = append(diff.Changed, f.Path)
		}
	}
	for _, f := range oldFiles {
		if _, ok := seen[f.Path]; !ok {
			diff.Removed = append(diff.Removed, f.Path)
		}
	}
	return diff, nil
}

// Restore copies a snapshot's backed-up files over the project's local
// tree. Files created since the snapshot are left in place.
func (s *Service) Restore(ctx context.Context, p *config.Project, snapshotID string) (int, error) {
	snap, files, err := s.Get(ctx, snapshotID)
	if err != nil {
		return 0, err
	}
	if snap.ProjectID != p.ID {
		return 0, fmt.Errorf("%w: %s does not belong to project %s", ErrSnapshotNotFound, snapshotID, p.ID)
	}

	dir := s.snapshotDir(p.ID, snapshotID)
	restored := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		src := filepath.Join(dir, filepath.FromSlash(f.Path))
		dst := filepath.Join(p.LocalPath, filepath.FromSlash(f.Path))
		if err := utils.CopyFile(src, dst); err != nil {
			return restored, fmt.Errorf("restore %s: %w", f.Path, err)
		}
		restored++
	}

	s.log.Info("snapshot restored", "project", p.ID, "snapshot", snapshotID, "files", restored)
	return restored, nil
}

// Delete removes a snapshot's rows and backup directory.
func (s *Service) Delete(ctx context.Context, snapshotID string) error {
	var snap Snapshot
	err := s.db.GetContext(ctx, &snap, `SELECT * FROM snapshots WHERE id = ?`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSnapshotNotFound
	}
	if err != nil {
		return err
	}
	return s.delete(ctx, &snap)
}

func (s *Service) delete(ctx context.Context, snap *Snapshot) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshot_files WHERE snapshot_id = ?`, snap.ID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, snap.ID); err != nil {
		return err
	}
	return os.RemoveAll(s.snapshotDir(snap.ProjectID, snap.ID))
}

func (s *Service) prune(ctx context.Context, projectID string) error {
	stale := []Snapshot{}
	err := s.db.SelectContext(ctx, &stale,
		`SELECT * FROM snapshots WHERE project_id = ?
		 ORDER BY created_at DESC, id
		 LIMIT -1 OFFSET ?`, projectID, maxSnapshots)
	if err != nil {
		return err
	}

	for i := range stale {
		if err := s.delete(ctx, &stale[i]); err != nil {
			return err
		}
		s.log.Debug("snapshot pruned", "project", projectID, "snapshot", stale[i].ID)
	}
	return nil
}
