package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/transfer"
)

// fakeTransport scripts the transport boundary for runner tests.
type fakeTransport struct {
	connectErr error
	previewErr error
	syncErr    error
	diff       []transfer.FileChange
	failFiles  map[string]error

	previewCalls int
	syncCalls    int
	closed       bool
}

func (f *fakeTransport) TestConnection(context.Context) error { return f.connectErr }

func (f *fakeTransport) Preview(context.Context) ([]transfer.FileChange, error) {
	f.previewCalls++
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return f.diff, nil
}

func (f *fakeTransport) Sync(_ context.Context, diff []transfer.FileChange, _ bool, onProgress transfer.ProgressFunc) (*transfer.Report, error) {
	f.syncCalls++
	if f.syncErr != nil {
		return nil, f.syncErr
	}

	report := &transfer.Report{Success: true}
	total := transfer.CountUploadable(diff)
	completed := 0
	for _, c := range diff {
		if !c.Uploadable() {
			continue
		}
		if onProgress != nil {
			onProgress(completed, total, transfer.FileEvent{Path: c.Path, Started: true})
		}
		completed++
		err := f.failFiles[c.Path]
		if err == nil {
			report.FilesUploaded++
		} else {
			report.Success = false
			report.Errors = append(report.Errors, err.Error())
		}
		if onProgress != nil {
			onProgress(completed, total, transfer.FileEvent{Path: c.Path, Err: err})
		}
	}
	return report, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func testProject() *config.Project {
	return &config.Project{
		ID:        "p1",
		Name:      "Test Site",
		LocalPath: "/tmp/site",
		Remote: config.Remote{
			Protocol: config.ProtocolSFTP,
			Host:     "example.com",
			Port:     22,
		},
	}
}

func newTestRunner(ft *fakeTransport) *Runner {
	return NewRunner(NewStore(), func(*config.Project) (transfer.Transport, error) {
		return ft, nil
	})
}

type completion struct {
	called   bool
	success  bool
	uploaded int
}

func (c *completion) fn(success bool, uploaded int) {
	c.called = true
	c.success = success
	c.uploaded = uploaded
}

func TestRunHappyPath(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "index.html", Status: transfer.StatusAdded, LocalSize: 10},
		{Path: "style.css", Status: transfer.StatusModified, LocalSize: 5},
		{Path: "keep.js", Status: transfer.StatusUnchanged, LocalSize: 3},
	}}
	r := newTestRunner(ft)

	stages := []Stage{}
	ch := r.Store().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if len(stages) == 0 || stages[len(stages)-1] != ev.State.Stage {
				stages = append(stages, ev.State.Stage)
			}
		}
	}()

	var c completion
	require.NoError(t, r.Run(context.Background(), testProject(), false, c.fn))
	r.Store().Unsubscribe(ch)
	<-done

	assert.Equal(t, []Stage{StageConnecting, StageAnalyzing, StageUploading, StageComplete}, stages)

	st := r.Store().Get("p1")
	assert.Equal(t, StageComplete, st.Stage)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, st.Error)
	require.Len(t, st.Files, 2)
	for _, f := range st.Files {
		assert.Equal(t, FileUploaded, f.Status)
	}

	assert.True(t, c.called)
	assert.True(t, c.success)
	assert.Equal(t, 2, c.uploaded)
	assert.True(t, ft.closed)
}

func TestRunNothingToUploadFastPath(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "index.html", Status: transfer.StatusUnchanged, LocalSize: 10},
		{Path: "gone.html", Status: transfer.StatusDeleted, RemoteSize: 2},
	}}
	r := newTestRunner(ft)

	var c completion
	require.NoError(t, r.Run(context.Background(), testProject(), false, c.fn))

	st := r.Store().Get("p1")
	assert.Equal(t, StageComplete, st.Stage)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, st.Files)
	assert.Len(t, st.Diff, 2)

	assert.True(t, c.called)
	assert.True(t, c.success)
	assert.Zero(t, c.uploaded)
	assert.Zero(t, ft.syncCalls, "upload stage is skipped entirely")
}

func TestRunConnectionFailure(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("dial tcp: refused")}
	r := newTestRunner(ft)

	var c completion
	err := r.Run(context.Background(), testProject(), false, c.fn)
	require.Error(t, err)

	st := r.Store().Get("p1")
	assert.Equal(t, StageError, st.Stage)
	assert.Contains(t, st.Error, "connection failed")
	assert.Equal(t, 10, st.Progress, "failure point stays visible")

	assert.True(t, c.called)
	assert.False(t, c.success)
	assert.Zero(t, c.uploaded)
	assert.Zero(t, ft.previewCalls)
}

func TestRunFailurePreservesPreviousDiff(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "index.html", Status: transfer.StatusAdded, LocalSize: 10},
	}}
	r := newTestRunner(ft)
	require.NoError(t, r.Run(context.Background(), testProject(), false, nil))

	ft.connectErr = errors.New("host unreachable")
	require.Error(t, r.Run(context.Background(), testProject(), false, nil))

	st := r.Store().Get("p1")
	assert.Equal(t, StageError, st.Stage)
	assert.Len(t, st.Diff, 1, "the last successful analysis survives a failed reconnect")
	assert.Len(t, st.Files, 1)
}

func TestRunAnalysisFailure(t *testing.T) {
	ft := &fakeTransport{previewErr: errors.New("permission denied")}
	r := newTestRunner(ft)

	var c completion
	err := r.Run(context.Background(), testProject(), false, c.fn)
	require.Error(t, err)

	st := r.Store().Get("p1")
	assert.Equal(t, StageError, st.Stage)
	assert.Contains(t, st.Error, "analysis failed")
	assert.False(t, c.success)
}

func TestRunUploadErrorsFailTheRun(t *testing.T) {
	ft := &fakeTransport{
		diff: []transfer.FileChange{
			{Path: "ok.html", Status: transfer.StatusAdded, LocalSize: 1},
			{Path: "bad.html", Status: transfer.StatusAdded, LocalSize: 2},
		},
		failFiles: map[string]error{"bad.html": errors.New("disk full")},
	}
	r := newTestRunner(ft)

	var c completion
	err := r.Run(context.Background(), testProject(), false, c.fn)
	require.Error(t, err)

	st := r.Store().Get("p1")
	assert.Equal(t, StageError, st.Stage)
	assert.Contains(t, st.Error, "disk full")
	assert.False(t, c.success)

	byPath := map[string]FileStatus{}
	for _, f := range st.Files {
		byPath[f.Path] = f.Status
	}
	assert.Equal(t, FileUploaded, byPath["ok.html"])
	assert.Equal(t, FileError, byPath["bad.html"])
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	ft := &fakeTransport{}
	r := newTestRunner(ft)
	r.Store().SetStage("p1", StageUploading)

	err := r.Run(context.Background(), testProject(), false, nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestRunCanRestartAfterErrorOrComplete(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "a.html", Status: transfer.StatusAdded, LocalSize: 1},
	}}
	r := newTestRunner(ft)

	require.NoError(t, r.Run(context.Background(), testProject(), false, nil))
	assert.Equal(t, StageComplete, r.Store().Get("p1").Stage)

	ft.syncErr = errors.New("timeout")
	require.Error(t, r.Run(context.Background(), testProject(), false, nil))
	assert.Equal(t, StageError, r.Store().Get("p1").Stage)

	ft.syncErr = nil
	require.NoError(t, r.Run(context.Background(), testProject(), false, nil))
	assert.Equal(t, StageComplete, r.Store().Get("p1").Stage)
}

func TestRunBroadcastsUploadingFiles(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "index.html", Status: transfer.StatusAdded, LocalSize: 10},
		{Path: "style.css", Status: transfer.StatusModified, LocalSize: 5},
	}}
	r := newTestRunner(ft)

	seen := map[string]map[FileStatus]bool{}
	ch := r.Store().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			for _, f := range ev.State.Files {
				if seen[f.Path] == nil {
					seen[f.Path] = map[FileStatus]bool{}
				}
				seen[f.Path][f.Status] = true
			}
		}
	}()

	require.NoError(t, r.Run(context.Background(), testProject(), false, nil))
	r.Store().Unsubscribe(ch)
	<-done

	for _, path := range []string{"index.html", "style.css"} {
		assert.True(t, seen[path][FilePending], "%s never seen pending", path)
		assert.True(t, seen[path][FileUploading], "%s never seen in flight", path)
		assert.True(t, seen[path][FileUploaded], "%s never seen uploaded", path)
	}
}

func TestPreviewLeavesStateUntouched(t *testing.T) {
	ft := &fakeTransport{diff: []transfer.FileChange{
		{Path: "a.html", Status: transfer.StatusAdded, LocalSize: 1},
	}}
	r := newTestRunner(ft)

	diff, err := r.Preview(context.Background(), testProject())
	require.NoError(t, err)
	assert.Len(t, diff, 1)
	assert.Equal(t, DefaultState(), r.Store().Get("p1"))
	assert.True(t, ft.closed)

	// idempotent
	diff2, err := r.Preview(context.Background(), testProject())
	require.NoError(t, err)
	assert.Equal(t, diff, diff2)
	assert.Equal(t, 2, ft.previewCalls)
}
