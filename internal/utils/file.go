// Package utils provides small filesystem and logging helpers shared by
// the Forge daemon.
package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureParent creates the parent directory of path.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

// FileHash returns the SHA-256 hash of a file as a hex string.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashBytes returns the SHA-256 hash of data as a hex string.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// CopyFile copies src to dst, creating dst's parent directories.
func CopyFile(src, dst string) error {
	if err := EnsureParent(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
