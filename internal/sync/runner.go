package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/transfer"
)

// ErrSyncInProgress is returned when a run is requested for a project that
// already has one in flight.
var ErrSyncInProgress = errors.New("sync already in progress")

// OnComplete is invoked exactly once at the end of a run with whether it
// succeeded and how many files were uploaded.
type OnComplete func(success bool, uploaded int)

// TransportFactory builds a transport for a project. Swapped out in tests.
type TransportFactory func(p *config.Project) (transfer.Transport, error)

// DefaultTransportFactory wires the project's remote settings and ignore
// file into a real transport.
func DefaultTransportFactory(p *config.Project) (transfer.Transport, error) {
	return transfer.New(&p.Remote, p.LocalPath, transfer.NewIgnore(p.LocalPath))
}

// Runner drives sync runs against the store. It enforces one run per
// project at a time; the store itself records whatever it is told.
type Runner struct {
	store        *Store
	newTransport TransportFactory
	log          *slog.Logger
}

func NewRunner(store *Store, factory TransportFactory) *Runner {
	if factory == nil {
		factory = DefaultTransportFactory
	}
	return &Runner{
		store:        store,
		newTransport: factory,
		log:          slog.Default().With("component", "sync"),
	}
}

func (r *Runner) Store() *Store {
	return r.store
}

// Preview computes the diff for a project without touching its sync state.
// It is read only and safe to call while a run is in flight elsewhere.
func (r *Runner) Preview(ctx context.Context, p *config.Project) ([]transfer.FileChange, error) {
	t, err := r.newTransport(p)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	return t.Preview(ctx)
}

// Run executes a full deployment for the project, driving the store through
// connecting, analyzing and uploading. When dryRun is set the transport
// simulates uploads. onComplete may be nil.
func (r *Runner) Run(ctx context.Context, p *config.Project, dryRun bool, onComplete OnComplete) error {
	if !r.store.BeginIfIdle(p.ID) {
		return fmt.Errorf("%w (project %s)", ErrSyncInProgress, p.ID)
	}

	start := time.Now()
	r.log.Info("sync started", "project", p.ID, "dryRun", dryRun)

	err := r.run(ctx, p, dryRun, onComplete)
	if err != nil {
		r.log.Error("sync failed", "project", p.ID, "took", time.Since(start), "error", err)
		return err
	}

	r.log.Info("sync finished", "project", p.ID, "took", time.Since(start))
	return nil
}

func (r *Runner) run(ctx context.Context, p *config.Project, dryRun bool, onComplete OnComplete) error {
	fail := func(err error) error {
		r.store.Fail(p.ID, err.Error())
		if onComplete != nil {
			onComplete(false, 0)
		}
		return err
	}

	t, err := r.newTransport(p)
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	if err := t.TestConnection(ctx); err != nil {
		return fail(fmt.Errorf("connection failed: %w", err))
	}

	r.store.SetStage(p.ID, StageAnalyzing)

	diff, err := t.Preview(ctx)
	if err != nil {
		return fail(fmt.Errorf("analysis failed: %w", err))
	}
	r.store.SetDiff(p.ID, diff)

	if transfer.CountUploadable(diff) == 0 {
		r.store.Complete(p.ID)
		if onComplete != nil {
			onComplete(true, 0)
		}
		return nil
	}

	r.store.SetStage(p.ID, StageUploading)

	report, err := t.Sync(ctx, diff, dryRun, func(completed, total int, ev transfer.FileEvent) {
		if ev.Started {
			r.store.SetFileStatus(p.ID, ev.Path, FileUploading)
			return
		}
		status := FileUploaded
		if ev.Err != nil {
			status = FileError
		}
		r.store.SetFileStatus(p.ID, ev.Path, status)
		r.store.SetProgress(p.ID, UploadProgress(completed, total))
	})
	if err != nil {
		return fail(fmt.Errorf("upload failed: %w", err))
	}
	if !report.Success {
		return fail(fmt.Errorf("upload finished with errors: %s", strings.Join(report.Errors, "; ")))
	}

	r.store.Complete(p.ID)
	if onComplete != nil {
		onComplete(true, report.FilesUploaded)
	}
	return nil
}
