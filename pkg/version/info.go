// Package version reports build metadata for the /version endpoint and the
// version command.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Unknown marks metadata that was not provided at build time.
const Unknown = "unknown"

// Build metadata, set with
// -ldflags "-X github.com/nimburion/crudkit/pkg/version.AppVersion=v1.2.3".
var (
	AppVersion = "dev"
	GitCommit  = ""
	BuildTime  = ""
)

// Info describes the running binary.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata. Commit and build time fall back to
// the VCS stamp embedded by the Go toolchain.
func Current(service string) Info {
	info := Info{
		Service:   orDefault(service, Unknown),
		Version:   orDefault(AppVersion, "dev"),
		Commit:    strings.TrimSpace(GitCommit),
		BuildTime: strings.TrimSpace(BuildTime),
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuildTime == "":
				info.BuildTime = s.Value
			}
		}
	}
	info.Commit = orDefault(info.Commit, Unknown)
	info.BuildTime = orDefault(info.BuildTime, Unknown)
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, built=%s, %s)", i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
