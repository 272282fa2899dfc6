// Package delta computes chunk-level change signatures for large files so
// repeat deployments can estimate how much of a file actually changed.
// Signatures are cached in sqlite per project.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// ChunkSize is the granularity of change detection.
	ChunkSize = 64 * 1024

	// MinFileSize is the threshold below which chunking is not worth the
	// bookkeeping; smaller files always transfer whole.
	MinFileSize = 256 * 1024
)

// DeltaStatus classifies a file against its cached signature.
type DeltaStatus string

const (
	DeltaNew       DeltaStatus = "new"
	DeltaUnchanged DeltaStatus = "unchanged"
	DeltaModified  DeltaStatus = "modified"
	DeltaSmall     DeltaStatus = "small"
	DeltaDeleted   DeltaStatus = "deleted"
)

// Signature is the chunked fingerprint of one file.
type Signature struct {
	Path     string   `json:"path"`
	Size     int64    `json:"size"`
	FileHash string   `json:"fileHash"`
	Chunks   []string `json:"chunks"`
}

// FileDelta is the comparison of a file against its previous signature.
type FileDelta struct {
	Path          string      `json:"path"`
	Status        DeltaStatus `json:"status"`
	Size          int64       `json:"size"`
	TotalChunks   int         `json:"totalChunks"`
	ChangedChunks int         `json:"changedChunks"`
	// BytesNeeded estimates the transfer cost: changed chunks for modified
	// files, the whole file otherwise.
	BytesNeeded int64 `json:"bytesNeeded"`
}

// GenerateSignature reads the file once, hashing each chunk and the whole
// content.
func GenerateSignature(path string) (*Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	sig := &Signature{Size: info.Size()}
	full := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			chunk := sha256.Sum256(buf[:n])
			sig.Chunks = append(sig.Chunks, hex.EncodeToString(chunk[:]))
			full.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	sig.FileHash = hex.EncodeToString(full.Sum(nil))
	return sig, nil
}

// Compare classifies the current signature against the previous one. A nil
// previous signature means the file was never seen.
func Compare(prev, current *Signature) FileDelta {
	d := FileDelta{
		Path:        current.Path,
		Size:        current.Size,
		TotalChunks: len(current.Chunks),
	}

	if current.Size < MinFileSize {
		d.Status = DeltaSmall
		d.BytesNeeded = current.Size
		return d
	}
	if prev == nil {
		d.Status = DeltaNew
		d.ChangedChunks = len(current.Chunks)
		d.BytesNeeded = current.Size
		return d
	}
	if prev.FileHash == current.FileHash {
		d.Status = DeltaUnchanged
		return d
	}

	d.Status = DeltaModified
	for i, chunk := range current.Chunks {
		if i >= len(prev.Chunks) || prev.Chunks[i] != chunk {
			d.ChangedChunks++
		}
	}

	d.BytesNeeded = int64(d.ChangedChunks) * ChunkSize
	if d.BytesNeeded > current.Size {
		d.BytesNeeded = current.Size
	}
	return d
}
