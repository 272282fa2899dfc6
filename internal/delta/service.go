package delta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/transfer"
)

const schema = `
CREATE TABLE IF NOT EXISTS delta_signatures (
	project_id TEXT NOT NULL,
	path       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	file_hash  TEXT NOT NULL,
	chunks     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (project_id, path)
);
`

type signatureRow struct {
	ProjectID string    `db:"project_id"`
	Path      string    `db:"path"`
	Size      int64     `db:"size"`
	FileHash  string    `db:"file_hash"`
	Chunks    string    `db:"chunks"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Analysis summarizes the delta state of a whole project.
type Analysis struct {
	Files       []FileDelta `json:"files"`
	TotalBytes  int64       `json:"totalBytes"`
	BytesNeeded int64       `json:"bytesNeeded"`
}

// SavingsPercent is how much of the total the delta transfer would skip.
func (a *Analysis) SavingsPercent() float64 {
	if a.TotalBytes == 0 {
		return 0
	}
	return float64(a.TotalBytes-a.BytesNeeded) / float64(a.TotalBytes) * 100
}

// Service caches signatures and analyzes projects against the cache.
type Service struct {
	db  *sqlx.DB
	log *slog.Logger
}

func NewService(conn *sqlx.DB) (*Service, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("delta schema: %w", err)
	}
	return &Service{db: conn, log: slog.Default().With("component", "delta")}, nil
}

func (s *Service) getCached(ctx context.Context, projectID, path string) (*Signature, error) {
	var row signatureRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM delta_signatures WHERE project_id = ? AND path = ?`, projectID, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sig := &Signature{Path: row.Path, Size: row.Size, FileHash: row.FileHash}
	if err := json.Unmarshal([]byte(row.Chunks), &sig.Chunks); err != nil {
		return nil, fmt.Errorf("decode chunks for %s: %w", path, err)
	}
	return sig, nil
}

func (s *Service) putCached(ctx context.Context, projectID string, sig *Signature) error {
	chunks, err := json.Marshal(sig.Chunks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO delta_signatures (project_id, path, size, file_hash, chunks, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, path) DO UPDATE SET
		   size = excluded.size,
		   file_hash = excluded.file_hash,
		   chunks = excluded.chunks,
		   updated_at = excluded.updated_at`,
		projectID, sig.Path, sig.Size, sig.FileHash, string(chunks), time.Now().UTC())
	return err
}

// AnalyzeProject signatures every file in the project's local tree,
// compares against the cache and refreshes it. Files missing since the last
// run are reported deleted and dropped from the cache.
func (s *Service) AnalyzeProject(ctx context.Context, p *config.Project) (*Analysis, error) {
	files, err := transfer.ScanLocal(p.LocalPath, transfer.NewIgnore(p.LocalPath))
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{}
	seen := make(map[string]struct{}, len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[f.RelPath] = struct{}{}

		sig, err := GenerateSignature(filepath.Join(p.LocalPath, filepath.FromSlash(f.RelPath)))
		if err != nil {
			return nil, err
		}
		sig.Path = f.RelPath

		prev, err := s.getCached(ctx, p.ID, f.RelPath)
		if err != nil {
			return nil, err
		}

		d := Compare(prev, sig)
		analysis.Files = append(analysis.Files, d)
		analysis.TotalBytes += d.Size
		if d.Status != DeltaUnchanged {
			analysis.BytesNeeded += d.BytesNeeded
		}

		if err := s.putCached(ctx, p.ID, sig); err != nil {
			return nil, err
		}
	}

	cached := []signatureRow{}
	if err := s.db.SelectContext(ctx, &cached,
		`SELECT * FROM delta_signatures WHERE project_id = ?`, p.ID); err != nil {
		return nil, err
	}
	for _, row := range cached {
		if _, ok := seen[row.Path]; ok {
			continue
		}
		analysis.Files = append(analysis.Files, FileDelta{Path: row.Path, Status: DeltaDeleted})
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM delta_signatures WHERE project_id = ? AND path = ?`, p.ID, row.Path); err != nil {
			return nil, err
		}
	}

	s.log.Info("delta analysis",
		"project", p.ID, "files", len(analysis.Files),
		"total", humanize.Bytes(uint64(analysis.TotalBytes)),
		"needed", humanize.Bytes(uint64(analysis.BytesNeeded)))
	return analysis, nil
}

// Forget drops all cached signatures for a project.
func (s *Service) Forget(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delta_signatures WHERE project_id = ?`, projectID)
	return err
}
