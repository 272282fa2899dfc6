package delta

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/db"
)

func writeBytes(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestGenerateSignatureChunking(t *testing.T) {
	dir := t.TempDir()
	// two full chunks plus a partial third
	data := bytes.Repeat([]byte{0xAB}, 2*ChunkSize+100)
	writeBytes(t, dir, "big.bin", data)

	sig, err := GenerateSignature(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), sig.Size)
	require.Len(t, sig.Chunks, 3)
	assert.Equal(t, sig.Chunks[0], sig.Chunks[1], "identical chunks hash identically")
	assert.NotEqual(t, sig.Chunks[0], sig.Chunks[2])
	assert.NotEmpty(t, sig.FileHash)
}

func TestGenerateSignatureEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeBytes(t, dir, "empty", nil)

	sig, err := GenerateSignature(filepath.Join(dir, "empty"))
	require.NoError(t, err)
	assert.Zero(t, sig.Size)
	assert.Empty(t, sig.Chunks)
}

func TestCompareStatuses(t *testing.T) {
	big := func(fill byte) *Signature {
		data := bytes.Repeat([]byte{fill}, MinFileSize)
		dir := t.TempDir()
		writeBytes(t, dir, "f", data)
		sig, err := GenerateSignature(filepath.Join(dir, "f"))
		require.NoError(t, err)
		sig.Path = "f"
		return sig
	}

	t.Run("small files skip chunk accounting", func(t *testing.T) {
		small := &Signature{Path: "s", Size: 100, FileHash: "h", Chunks: []string{"c"}}
		d := Compare(nil, small)
		assert.Equal(t, DeltaSmall, d.Status)
		assert.Equal(t, int64(100), d.BytesNeeded)
	})

	t.Run("unseen file is new", func(t *testing.T) {
		sig := big(0x01)
		d := Compare(nil, sig)
		assert.Equal(t, DeltaNew, d.Status)
		assert.Equal(t, sig.Size, d.BytesNeeded)
	})

	t.Run("same hash is unchanged", func(t *testing.T) {
		a, b := big(0x01), big(0x01)
		d := Compare(a, b)
		assert.Equal(t, DeltaUnchanged, d.Status)
		assert.Zero(t, d.BytesNeeded)
	})

	t.Run("partial change counts chunks", func(t *testing.T) {
		dir := t.TempDir()
		data := bytes.Repeat([]byte{0x01}, MinFileSize)
		writeBytes(t, dir, "f", data)
		prev, err := GenerateSignature(filepath.Join(dir, "f"))
		require.NoError(t, err)

		data[0] = 0xFF // touch only the first chunk
		writeBytes(t, dir, "f", data)
		curr, err := GenerateSignature(filepath.Join(dir, "f"))
		require.NoError(t, err)
		curr.Path = "f"

		d := Compare(prev, curr)
		assert.Equal(t, DeltaModified, d.Status)
		assert.Equal(t, 1, d.ChangedChunks)
		assert.Equal(t, int64(ChunkSize), d.BytesNeeded)
	})
}

func TestAnalyzeProject(t *testing.T) {
	conn, err := db.New()
	require.NoError(t, err)
	defer conn.Close()

	svc, err := NewService(conn)
	require.NoError(t, err)

	p := &config.Project{
		ID:        "p1",
		LocalPath: t.TempDir(),
		Remote:    config.Remote{Protocol: config.ProtocolSFTP, Host: "example.com"},
	}
	ctx := context.Background()

	writeBytes(t, p.LocalPath, "big.bin", bytes.Repeat([]byte{0x01}, MinFileSize))
	writeBytes(t, p.LocalPath, "small.txt", []byte("tiny"))

	first, err := svc.AnalyzeProject(ctx, p)
	require.NoError(t, err)
	require.Len(t, first.Files, 2)

	byPath := map[string]FileDelta{}
	for _, d := range first.Files {
		byPath[d.Path] = d
	}
	assert.Equal(t, DeltaNew, byPath["big.bin"].Status)
	assert.Equal(t, DeltaSmall, byPath["small.txt"].Status)

	// untouched second run
	second, err := svc.AnalyzeProject(ctx, p)
	require.NoError(t, err)
	byPath = map[string]FileDelta{}
	for _, d := range second.Files {
		byPath[d.Path] = d
	}
	assert.Equal(t, DeltaUnchanged, byPath["big.bin"].Status)
	assert.Greater(t, second.SavingsPercent(), 90.0)

	// deletion shows up once and then leaves the cache
	require.NoError(t, os.Remove(filepath.Join(p.LocalPath, "big.bin")))
	third, err := svc.AnalyzeProject(ctx, p)
	require.NoError(t, err)
	byPath = map[string]FileDelta{}
	for _, d := range third.Files {
		byPath[d.Path] = d
	}
	assert.Equal(t, DeltaDeleted, byPath["big.bin"].Status)

	fourth, err := svc.AnalyzeProject(ctx, p)
	require.NoError(t, err)
	for _, d := range fourth.Files {
		assert.NotEqual(t, DeltaDeleted, d.Status)
	}
}
