package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every line with a sequence
// number and timestamp before forwarding it to the target. It buffers
// partial writes until a full line arrives.
type LogInterceptor struct {
	target   io.Writer
	sequence atomic.Uint64
	buf      bytes.Buffer
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target}
}

func (i *LogInterceptor) writeLine(line []byte) (int, error) {
	prefix := slog.Uint64("line", i.sequence.Add(1)).String() + " " +
		slog.String("time", time.Now().Format(time.RFC3339)).String() + " "

	total, err := io.WriteString(i.target, prefix)
	if err != nil {
		return total, err
	}

	n, err := i.target.Write(line)
	total += n
	if err != nil {
		return total, err
	}

	n, err = io.WriteString(i.target, "\n")
	return total + n, err
}

// Write buffers p and forwards complete lines with their prefix. Anything
// after the last newline stays buffered until a later write (or Close)
// completes it.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	if _, err := i.buf.Write(p); err != nil {
		return 0, err
	}

	for {
		idx := bytes.IndexByte(i.buf.Bytes(), '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := i.buf.Next(idx + 1)
		line = bytes.TrimRight(line[:idx], "\r")
		if _, err := i.writeLine(line); err != nil {
			return len(p), err
		}
	}
}

// Close flushes any trailing partial line.
func (i *LogInterceptor) Close() error {
	remaining := i.buf.Bytes()
	if len(remaining) > 0 {
		_, err := i.writeLine(remaining)
		i.buf.Reset()
		return err
	}
	return nil
}
