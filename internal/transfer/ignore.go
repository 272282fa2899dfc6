package transfer

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/forgeapp/forge/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is looked up at the root of each project's local path.
const IgnoreFileName = ".forgeignore"

var defaultIgnoreLines = []string{
	// forge
	IgnoreFileName,
	// General excludes
	".git",
	"*.tmp",
	"*.log",
	"node_modules/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	// Editors
	".vscode",
	".idea",
}

// Ignore decides which local files are excluded from diffing and upload.
type Ignore struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnore builds a matcher from the default rules plus the project's
// .forgeignore file when present.
func NewIgnore(baseDir string) *Ignore {
	ignoreLines := defaultIgnoreLines
	ignorePath := filepath.Join(baseDir, IgnoreFileName)

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	return &Ignore{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(ignoreLines...),
	}
}

// ShouldIgnore matches the relative path against the compiled rules.
func (s *Ignore) ShouldIgnore(relPath string) bool {
	if s == nil || s.ignore == nil {
		return false
	}
	return s.ignore.MatchesPath(relPath)
}
