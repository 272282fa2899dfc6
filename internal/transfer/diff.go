package transfer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFile is a file found under the project's local path, keyed by its
// slash-separated path relative to the root.
type LocalFile struct {
	RelPath string
	Size    int64
}

// remoteEntry is a file found under the remote path, keyed the same way.
type remoteEntry struct {
	RelPath string
	Size    int64
}

// ScanLocal walks the local tree collecting regular files. Hidden files and
// directories (dot-prefixed) are skipped, as is anything the ignore matcher
// rejects.
func ScanLocal(root string, ignore *Ignore) ([]LocalFile, error) {
	var files []LocalFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if ignore.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, LocalFile{RelPath: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("local path does not exist: %s", root)
		}
		return nil, err
	}

	return files, nil
}

// BuildDiff compares local files against remote entries by relative path.
// Files present on both sides compare by size only; a size match counts as
// unchanged. Remote files with no local counterpart are reported as deleted
// but are never removed. The result is sorted by path.
func BuildDiff(local []LocalFile, remote []remoteEntry) []FileChange {
	remoteByPath := make(map[string]remoteEntry, len(remote))
	for _, r := range remote {
		remoteByPath[r.RelPath] = r
	}

	diff := make([]FileChange, 0, len(local))
	seen := make(map[string]struct{}, len(local))

	for _, lf := range local {
		seen[lf.RelPath] = struct{}{}
		change := FileChange{Path: lf.RelPath, LocalSize: lf.Size}

		if rf, ok := remoteByPath[lf.RelPath]; ok {
			change.RemoteSize = rf.Size
			if rf.Size == lf.Size {
				change.Status = StatusUnchanged
			} else {
				change.Status = StatusModified
			}
		} else {
			change.Status = StatusAdded
		}
		diff = append(diff, change)
	}

	for _, rf := range remote {
		if _, ok := seen[rf.RelPath]; ok {
			continue
		}
		diff = append(diff, FileChange{
			Path:       rf.RelPath,
			Status:     StatusDeleted,
			RemoteSize: rf.Size,
		})
	}

	sort.Slice(diff, func(i, j int) bool { return diff[i].Path < diff[j].Path })
	return diff
}
