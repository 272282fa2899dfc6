package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptorPrefixesLines(t *testing.T) {
	var out bytes.Buffer
	w := NewLogInterceptor(&out)

	n, err := w.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line=1")
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "line=2")
	assert.Contains(t, lines[1], "second")
}

func TestLogInterceptorBuffersPartialWrites(t *testing.T) {
	var out bytes.Buffer
	w := NewLogInterceptor(&out)

	_, err := w.Write([]byte("partial"))
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "an unterminated write stays buffered")

	_, err = w.Write([]byte(" record\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 1, "the two writes form a single record")
	assert.Contains(t, lines[0], "partial record")
}

func TestLogInterceptorCloseFlushesTail(t *testing.T) {
	var out bytes.Buffer
	w := NewLogInterceptor(&out)

	_, err := w.Write([]byte("done\nno newline"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "no newline")
}
