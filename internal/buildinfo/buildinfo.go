// Package buildinfo holds build-time metadata, kept apart from user
// configuration. Version and BuildDate are set with -ldflags:
//
//	-X github.com/tphakala/seisnet-go/internal/buildinfo.Version=v1.2.0
//	-X github.com/tphakala/seisnet-go/internal/buildinfo.BuildDate=2024-03-01T00:00:00Z
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	Revision  string `json:"revision,omitempty"` // VCS revision, when stamped by the toolchain
	Modified  bool   `json:"modified,omitempty"` // built from a dirty tree
	GoVersion string `json:"go_version"`
}

// Get returns the metadata of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// String formats the info for --version output.
func (i Info) String() string {
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		rev = "unknown"
	}
	if i.Modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (built %s, revision %s, %s)", i.Version, i.BuildDate, rev, i.GoVersion)
}
