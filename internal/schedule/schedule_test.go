package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runRecorder struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (r *runRecorder) run(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, projectID)
	return r.err
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestSetRejectsBadExpression(t *testing.T) {
	s := NewScheduler(nil)
	assert.Error(t, s.Set("p1", "not cron"))
	assert.NoError(t, s.Set("p1", "*/5 * * * *"))
	assert.NoError(t, s.Set("p1", "@daily"))
}

func TestStatusAndRemove(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Set("p1", "0 3 * * *"))

	st, ok := s.Status("p1")
	require.True(t, ok)
	assert.Equal(t, "0 3 * * *", st.Expr)
	assert.False(t, st.NextRun.IsZero())
	assert.True(t, st.NextRun.After(time.Now()))

	assert.Len(t, s.All(), 1)

	s.Remove("p1")
	_, ok = s.Status("p1")
	assert.False(t, ok)
}

func TestCheckDueFiresAndReschedules(t *testing.T) {
	rec := &runRecorder{}
	s := NewScheduler(rec.run)

	clock := time.Date(2026, 8, 26, 2, 59, 30, 0, time.UTC)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Set("p1", "0 3 * * *"))
	before, _ := s.Status("p1")

	// not due yet
	s.checkDue(context.Background())
	s.wg.Wait()
	assert.Zero(t, rec.count())

	clock = clock.Add(time.Minute)
	s.checkDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, 1, rec.count())

	after, _ := s.Status("p1")
	assert.Equal(t, clock, after.LastRun)
	assert.True(t, after.NextRun.After(before.NextRun))
	assert.Empty(t, after.LastError)

	// same tick does not double-fire
	s.checkDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, 1, rec.count())
}

func TestCheckDueRecordsError(t *testing.T) {
	rec := &runRecorder{err: errors.New("remote down")}
	s := NewScheduler(rec.run)

	clock := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	require.NoError(t, s.Set("p1", "* * * * *"))

	clock = clock.Add(time.Minute)
	s.checkDue(context.Background())
	s.wg.Wait()

	st, _ := s.Status("p1")
	assert.Equal(t, "remote down", st.LastError)

	// a later successful run clears the error
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	clock = clock.Add(time.Minute)
	s.checkDue(context.Background())
	s.wg.Wait()

	st, _ = s.Status("p1")
	assert.Empty(t, st.LastError)
	assert.Equal(t, 2, rec.count())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler((&runRecorder{}).run)
	s.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
