package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/db"
)

func newTestService(t *testing.T) (*Service, *config.Project) {
	t.Helper()

	conn, err := db.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	svc, err := NewService(conn, filepath.Join(t.TempDir(), "backups"))
	require.NoError(t, err)

	p := &config.Project{
		ID:        "p1",
		Name:      "Test Site",
		LocalPath: t.TempDir(),
		Remote:    config.Remote{Protocol: config.ProtocolSFTP, Host: "example.com"},
	}
	return svc, p
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCreateAndGet(t *testing.T) {
	svc, p := newTestService(t)
	writeFile(t, p.LocalPath, "index.html", "<html>")
	writeFile(t, p.LocalPath, "css/style.css", "body{}")

	snap, err := svc.Create(context.Background(), p, "first capture")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 2, snap.FileCount)
	assert.Equal(t, int64(12), snap.TotalSize)

	got, files, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "first capture", got.Description)
	require.Len(t, files, 2)
	assert.Equal(t, "css/style.css", files[0].Path)
	assert.NotEmpty(t, files[0].Hash)
}

func TestGetUnknownSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestListNewestFirst(t *testing.T) {
	svc, p := newTestService(t)
	writeFile(t, p.LocalPath, "a.txt", "x")

	first, err := svc.Create(context.Background(), p, "one")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := svc.Create(context.Background(), p, "two")
	require.NoError(t, err)

	snaps, err := svc.List(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, first.ID, snaps[1].ID)
}

func TestCompare(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	writeFile(t, p.LocalPath, "keep.txt", "same")
	writeFile(t, p.LocalPath, "edit.txt", "v1")
	writeFile(t, p.LocalPath, "drop.txt", "bye")
	old, err := svc.Create(ctx, p, "")
	require.NoError(t, err)

	writeFile(t, p.LocalPath, "edit.txt", "v2 longer")
	writeFile(t, p.LocalPath, "new.txt", "hi")
	require.NoError(t, os.Remove(filepath.Join(p.LocalPath, "drop.txt")))
	latest, err := svc.Create(ctx, p, "")
	require.NoError(t, err)

	diff, err := svc.Compare(ctx, old.ID, latest.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, diff.Added)
	assert.Equal(t, []string{"drop.txt"}, diff.Removed)
	assert.Equal(t, []string{"edit.txt"}, diff.Changed)
}

func TestRestore(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	writeFile(t, p.LocalPath, "index.html", "original")
	snap, err := svc.Create(ctx, p, "")
	require.NoError(t, err)

	writeFile(t, p.LocalPath, "index.html", "clobbered")
	writeFile(t, p.LocalPath, "extra.html", "untracked")

	restored, err := svc.Restore(ctx, p, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := os.ReadFile(filepath.Join(p.LocalPath, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
	assert.FileExists(t, filepath.Join(p.LocalPath, "extra.html"), "files newer than the snapshot survive")
}

func TestRestoreRejectsForeignSnapshot(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	writeFile(t, p.LocalPath, "a.txt", "x")
	snap, err := svc.Create(ctx, p, "")
	require.NoError(t, err)

	other := &config.Project{ID: "p2", LocalPath: t.TempDir(), Remote: p.Remote}
	_, err = svc.Restore(ctx, other, snap.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestPruneKeepsRetentionLimit(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	for i := 0; i < maxSnapshots+3; i++ {
		writeFile(t, p.LocalPath, "a.txt", fmt.Sprintf("rev %d", i))
		_, err := svc.Create(ctx, p, "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	snaps, err := svc.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, maxSnapshots)
}

func TestDelete(t *testing.T) {
	svc, p := newTestService(t)
	ctx := context.Background()

	writeFile(t, p.LocalPath, "a.txt", "x")
	snap, err := svc.Create(ctx, p, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, snap.ID))
	_, _, err = svc.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, snap.ID), ErrSnapshotNotFound)
}
