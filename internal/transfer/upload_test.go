package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	uploaded []string
	failOn   map[string]error
}

func (s *fakeSession) uploadFile(_ context.Context, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[relPath]; ok {
		return err
	}
	s.uploaded = append(s.uploaded, relPath)
	return nil
}

func (s *fakeSession) close() error { return nil }

func fakeFactory(s *fakeSession) sessionFactory {
	return func(context.Context) (uploadSession, error) { return s, nil }
}

func TestRunUploadsReportsProgress(t *testing.T) {
	diff := []FileChange{
		{Path: "a.txt", Status: StatusAdded, LocalSize: 10},
		{Path: "b.txt", Status: StatusModified, LocalSize: 20},
		{Path: "same.txt", Status: StatusUnchanged, LocalSize: 5},
		{Path: "gone.txt", Status: StatusDeleted, RemoteSize: 5},
	}

	sess := &fakeSession{}
	var mu sync.Mutex
	var steps []int
	var started []string
	report, err := runUploads(context.Background(), diff, false, fakeFactory(sess), func(completed, total int, ev FileEvent) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, total)
		assert.NoError(t, ev.Err)
		if ev.Started {
			started = append(started, ev.Path)
			return
		}
		steps = append(steps, completed)
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.FilesUploaded)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.Empty(t, report.Errors)
	assert.ElementsMatch(t, []int{1, 2}, steps)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, started, "every upload announces itself before settling")
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, sess.uploaded)
}

func TestRunUploadsNothingToDo(t *testing.T) {
	diff := []FileChange{
		{Path: "same.txt", Status: StatusUnchanged},
		{Path: "gone.txt", Status: StatusDeleted},
	}

	called := false
	report, err := runUploads(context.Background(), diff, false, fakeFactory(&fakeSession{}), func(int, int, FileEvent) {
		called = true
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Zero(t, report.FilesUploaded)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.False(t, called)
}

func TestRunUploadsDryRun(t *testing.T) {
	diff := []FileChange{
		{Path: "a.txt", Status: StatusAdded, LocalSize: 1},
		{Path: "b.txt", Status: StatusAdded, LocalSize: 2},
	}

	sess := &fakeSession{}
	settled := 0
	report, err := runUploads(context.Background(), diff, true, fakeFactory(sess), func(_, _ int, ev FileEvent) {
		if !ev.Started {
			settled++
		}
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.FilesUploaded)
	assert.Equal(t, 2, settled)
	assert.Empty(t, sess.uploaded, "dry run must not touch the session")
}

func TestRunUploadsCollectsFailures(t *testing.T) {
	diff := []FileChange{
		{Path: "ok.txt", Status: StatusAdded, LocalSize: 1},
		{Path: "bad.txt", Status: StatusAdded, LocalSize: 2},
	}

	sess := &fakeSession{failOn: map[string]error{"bad.txt": errors.New("boom")}}
	report, err := runUploads(context.Background(), diff, false, fakeFactory(sess), nil)
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, 1, report.FilesUploaded)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "bad.txt")
}

func TestRunUploadsAbortsAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("boom")
	diff := make([]FileChange, 0, 10)
	failOn := map[string]error{}
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		diff = append(diff, FileChange{Path: p, Status: StatusAdded, LocalSize: 1})
		failOn[p] = boom
	}

	sess := &fakeSession{failOn: failOn}
	report, err := runUploads(context.Background(), diff, false, fakeFactory(sess), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.False(t, report.Success)
	assert.Zero(t, report.FilesUploaded)
}
