package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeJournalLifecycle(t *testing.T) {
	root := t.TempDir()
	j := openResumeJournal(root)

	assert.False(t, j.resumable("site/a.bin", 100), "nothing resumable in a fresh journal")

	j.begin("site/a.bin", 100)
	assert.True(t, j.resumable("site/a.bin", 100))
	assert.False(t, j.resumable("site/a.bin", 101), "a size change restarts from zero")

	j.finish("site/a.bin")
	assert.False(t, j.resumable("site/a.bin", 100), "completed uploads leave no trace")
}

func TestResumeJournalSurvivesRestart(t *testing.T) {
	root := t.TempDir()

	j := openResumeJournal(root)
	j.begin("big.iso", 1<<20)

	reopened := openResumeJournal(root)
	assert.True(t, reopened.resumable("big.iso", 1<<20), "an interrupted upload is visible to the next run")

	reopened.finish("big.iso")
	assert.False(t, openResumeJournal(root).resumable("big.iso", 1<<20))
}

func TestResumeOffsetRequiresRemotePrefix(t *testing.T) {
	j := openResumeJournal(t.TempDir())
	j.begin("a.bin", 100)

	assert.Equal(t, int64(40), j.resumeOffset("a.bin", 100, 40))
	assert.Zero(t, j.resumeOffset("a.bin", 100, 0), "an absent remote file starts fresh")
	assert.Zero(t, j.resumeOffset("a.bin", 100, 100), "a complete remote file is not appended to")
	assert.Zero(t, j.resumeOffset("a.bin", 100, 150), "a larger remote file means different content")
	assert.Zero(t, j.resumeOffset("other.bin", 100, 40), "only journaled files resume")
}

func TestResumeJournalToleratesCorruptFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, resumeJournalName), []byte("{not json"), 0644))

	j := openResumeJournal(root)
	assert.False(t, j.resumable("a.bin", 10))

	// the journal is usable and rewrites itself cleanly
	j.begin("a.bin", 10)
	assert.True(t, openResumeJournal(root).resumable("a.bin", 10))
}
