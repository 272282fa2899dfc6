// Package schedule triggers per-project deployments on cron expressions.
// Due entries are checked once a minute.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultTick = time.Minute

// RunFunc executes a scheduled deployment. The returned error is recorded
// on the entry.
type RunFunc func(ctx context.Context, projectID string) error

// Status is the externally visible state of one schedule.
type Status struct {
	ProjectID string    `json:"projectId"`
	Expr      string    `json:"expr"`
	NextRun   time.Time `json:"nextRun"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type entry struct {
	status   Status
	schedule cron.Schedule
	running  bool
}

// Scheduler holds one cron entry per project.
type Scheduler struct {
	entries map[string]*entry
	mu      sync.Mutex

	run  RunFunc
	tick time.Duration
	now  func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
	log  *slog.Logger
}

func NewScheduler(run RunFunc) *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		run:     run,
		tick:    defaultTick,
		now:     time.Now,
		done:    make(chan struct{}),
		log:     slog.Default().With("component", "schedule"),
	}
}

// Set installs or replaces the project's schedule. The expression uses the
// standard five-field cron syntax.
func (s *Scheduler) Set(projectID, expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[projectID] = &entry{
		schedule: schedule,
		status: Status{
			ProjectID: projectID,
			Expr:      expr,
			NextRun:   schedule.Next(s.now()),
		},
	}
	s.log.Info("schedule set", "project", projectID, "expr", expr)
	return nil
}

// Remove drops the project's schedule if present.
func (s *Scheduler) Remove(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, projectID)
}

// Status returns the schedule state for one project.
func (s *Scheduler) Status(projectID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[projectID]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// All returns every schedule's state.
func (s *Scheduler) All() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.status)
	}
	return out
}

// Start runs the tick loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.checkDue(ctx)
			}
		}
	}()
	s.log.Info("scheduler started", "tick", s.tick)
}

func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// checkDue fires every entry whose next run has passed. Runs execute in
// their own goroutine; an entry still running is skipped, not queued.
func (s *Scheduler) checkDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []string
	for id, e := range s.entries {
		if e.running || e.status.NextRun.After(now) {
			continue
		}
		e.running = true
		e.status.LastRun = now
		e.status.NextRun = e.schedule.Next(now)
		due = append(due, id)
	}
	s.mu.Unlock()

	for _, id := range due {
		s.wg.Add(1)
		go func(projectID string) {
			defer s.wg.Done()

			s.log.Info("scheduled run", "project", projectID)
			err := s.run(ctx, projectID)

			s.mu.Lock()
			if e, ok := s.entries[projectID]; ok {
				e.running = false
				if err != nil {
					e.status.LastError = err.Error()
				} else {
					e.status.LastError = ""
				}
			}
			s.mu.Unlock()

			if err != nil {
				s.log.Error("scheduled run failed", "project", projectID, "error", err)
			}
		}(id)
	}
}
