// Package version holds the build metadata of the pyqualify binary.
package version

import (
	"fmt"
	"runtime/debug"
)

const unset = "dev"

// Set with -ldflags "-X github.com/Sumatoshi-tech/pyqualify/pkg/version.Version=...".
var (
	Version = unset
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion fills in what -ldflags left unset from the module build
// info, so `go install`ed binaries still report a version and commit.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == unset && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" && setting.Value != "" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

// String formats the metadata for `pyqualify version`.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
