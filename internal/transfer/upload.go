package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/forgeapp/forge/internal/queue"
)

const (
	// maxUploadFailures aborts the run once this many files have failed.
	maxUploadFailures = 3

	defaultWorkers = 4
	maxWorkers     = 8
)

// uploadSession is a single remote connection capable of storing files.
// Each worker holds its own session so uploads can run in parallel.
type uploadSession interface {
	uploadFile(ctx context.Context, relPath string) error
	close() error
}

type sessionFactory func(ctx context.Context) (uploadSession, error)

func workersFor(n int) int {
	w := defaultWorkers
	if n > 32 {
		w = maxWorkers
	}
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// runUploads pushes the uploadable entries of the diff through a bounded
// worker pool. Small files go first so progress moves early. Deleted entries
// are counted in the report but never acted on. When dryRun is set no
// sessions are opened and every entry is reported as it would settle.
func runUploads(ctx context.Context, diff []FileChange, dryRun bool, newSession sessionFactory, onProgress ProgressFunc) (*Report, error) {
	pending := queue.NewPriorityQueue[FileChange]()
	deleted := 0
	for _, c := range diff {
		switch {
		case c.Uploadable():
			prio := int(c.LocalSize)
			if c.LocalSize > int64(1<<31-1) {
				prio = 1<<31 - 1
			}
			pending.Enqueue(c, prio)
		case c.Status == StatusDeleted:
			deleted++
		}
	}

	total := pending.Len()
	report := &Report{FilesDeleted: deleted}

	if total == 0 {
		report.Success = true
		return report, nil
	}

	var (
		completed atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		errs      []string
		uploaded  int
	)

	starting := func(path string) {
		if onProgress != nil {
			onProgress(int(completed.Load()), total, FileEvent{Path: path, Started: true})
		}
	}

	notify := func(ev FileEvent) {
		done := int(completed.Add(1))
		mu.Lock()
		if ev.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ev.Path, ev.Err))
		} else {
			uploaded++
		}
		mu.Unlock()
		if onProgress != nil {
			onProgress(done, total, ev)
		}
	}

	if dryRun {
		for {
			c, ok := pending.Dequeue()
			if !ok {
				break
			}
			starting(c.Path)
			notify(FileEvent{Path: c.Path})
		}
		report.Success = true
		report.FilesUploaded = uploaded
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workersFor(total); i++ {
		g.Go(func() error {
			sess, err := newSession(gctx)
			if err != nil {
				return err
			}
			defer sess.close()

			for {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c, ok := pending.Dequeue()
				if !ok {
					return nil
				}

				starting(c.Path)
				err := sess.uploadFile(gctx, c.Path)
				notify(FileEvent{Path: c.Path, Err: err})
				if err != nil {
					slog.Warn("upload failed", "path", c.Path, "error", err)
					if failures.Add(1) >= maxUploadFailures {
						return ErrTooManyErrors
					}
				}
			}
		})
	}

	runErr := g.Wait()

	report.FilesUploaded = uploaded
	report.Errors = errs
	report.Success = runErr == nil && failures.Load() == 0
	return report, runErr
}
