// Package daemon wires the services together and runs the control plane.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/db"
	"github.com/forgeapp/forge/internal/delta"
	"github.com/forgeapp/forge/internal/history"
	"github.com/forgeapp/forge/internal/schedule"
	"github.com/forgeapp/forge/internal/scraper"
	fsync "github.com/forgeapp/forge/internal/sync"
	"github.com/forgeapp/forge/internal/watch"
)

// Daemon owns every long-running service: the sync runner, inbox watchers,
// the scheduler and the HTTP control plane.
type Daemon struct {
	cfg *config.Config

	dbConn      *sqlx.DB
	runner      *fsync.Runner
	history     *history.Service
	delta       *delta.Service
	scraper     *scraper.Scraper
	scrapeCache *scraper.Cache
	scheduler   *schedule.Scheduler
	watcher     *watch.Manager
	server      *http.Server

	wg  sync.WaitGroup
	log *slog.Logger
}

func New(cfg *config.Config) (*Daemon, error) {
	dbConn, err := db.New(db.WithPath(cfg.DBPath()))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	historySvc, err := history.NewService(dbConn, cfg.BackupDir())
	if err != nil {
		dbConn.Close()
		return nil, err
	}
	deltaSvc, err := delta.NewService(dbConn)
	if err != nil {
		dbConn.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:         cfg,
		dbConn:      dbConn,
		runner:      fsync.NewRunner(fsync.NewStore(), nil),
		history:     historySvc,
		delta:       deltaSvc,
		scraper:     scraper.New(),
		scrapeCache: scraper.NewCache(filepath.Join(cfg.DataDir, "scrape-cache")),
		watcher:     watch.NewManager(),
		log:         slog.Default().With("component", "daemon"),
	}

	d.scheduler = schedule.NewScheduler(func(ctx context.Context, projectID string) error {
		return d.RunSync(ctx, projectID, false)
	})

	d.server = &http.Server{
		Addr:    cfg.BindAddr,
		Handler: d.setupRoutes(),
		// Timeouts to prevent slow client attacks. Write stays generous for
		// SSE streams.
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return d, nil
}

// Runner exposes the sync runner, used by the CLI when running without the
// HTTP server.
func (d *Daemon) Runner() *fsync.Runner { return d.runner }

func (d *Daemon) History() *history.Service { return d.history }

func (d *Daemon) Delta() *delta.Service { return d.delta }

func (d *Daemon) Scraper() *scraper.Scraper { return d.scraper }

func (d *Daemon) ScrapeCache() *scraper.Cache { return d.scrapeCache }

// RunSync executes a deployment for the project id.
func (d *Daemon) RunSync(ctx context.Context, projectID string, dryRun bool) error {
	p, err := d.cfg.Project(projectID)
	if err != nil {
		return err
	}
	return d.runner.Run(ctx, p, dryRun, nil)
}

// Start brings up watchers, schedules and the control plane, then blocks
// until the context is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	for i := range d.cfg.Projects {
		p := &d.cfg.Projects[i]

		events, err := d.watcher.Watch(p)
		if err != nil {
			d.log.Warn("inbox watch failed", "project", p.ID, "error", err)
		} else {
			d.wg.Add(1)
			go d.consumeInbox(events)
		}

		if p.Schedule.Enabled && p.Schedule.Expr != "" {
			if err := d.scheduler.Set(p.ID, p.Schedule.Expr); err != nil {
				d.log.Warn("bad schedule", "project", p.ID, "expr", p.Schedule.Expr, "error", err)
			}
		}
	}

	d.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("control plane start", "addr", fmt.Sprintf("http://%s", d.cfg.BindAddr))
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return d.shutdown()
	}
}

// consumeInbox surfaces files dropped into a project inbox. They live under
// the project's local path, so the next sync run picks them up.
func (d *Daemon) consumeInbox(events <-chan watch.Event) {
	defer d.wg.Done()
	for ev := range events {
		d.log.Info("inbox file received", "project", ev.ProjectID, "path", ev.Path)
	}
}

func (d *Daemon) shutdown() error {
	d.log.Info("daemon stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.server.Shutdown(shutdownCtx)

	d.scheduler.Stop()
	d.watcher.StopAll()
	d.wg.Wait()
	d.runner.Store().Close()
	d.dbConn.Close()

	d.log.Info("daemon stopped")
	return err
}
