// Package version reports build identity for the forge binary. Release
// builds stamp these vars with -ldflags; dev builds fall back to whatever
// the Go module and VCS metadata say.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const AppName = "Forge"

var (
	Version  = "0.1.0-dev"
	Revision = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "0.1.0-dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = strings.TrimPrefix(info.Main.Version, "v")
	}
	if Revision != "unknown" {
		return
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		Revision = rev + dirty
	}
}

// Short is "0.1.0 (abc123)".
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// ShortWithApp is "Forge 0.1.0 (abc123)".
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed adds the toolchain and platform.
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s)",
		Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
