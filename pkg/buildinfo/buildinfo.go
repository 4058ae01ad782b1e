// Package buildinfo reports which meetiq binary is running.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Stamped by the release build:
//
//	go build -ldflags "-X github.com/otherjamesbrown/meetiq/pkg/buildinfo.Version=v0.3.0 \
//	  -X github.com/otherjamesbrown/meetiq/pkg/buildinfo.Commit=b806fe7 \
//	  -X github.com/otherjamesbrown/meetiq/pkg/buildinfo.BuildTime=2026-02-07T10:30:00Z"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Name is the program name. It also namespaces metrics.
const Name = "meetiq"

type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the stamped values. An unstamped `go build` from a checkout
// falls back to the VCS revision and time the toolchain recorded.
func Get() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "unknown" && len(s.Value) >= 7:
				info.Commit = s.Value[:7]
			case s.Key == "vcs.time" && info.BuildTime == "unknown":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String is "v0.3.0 (b806fe7, 2026-02-07T10:30:00Z)".
func String() string {
	i := Get()
	return i.Version + " (" + i.Commit + ", " + i.BuildTime + ")"
}

// UserAgent identifies meetiq to remote services, e.g. "meetiq/v0.3.0".
func UserAgent() string {
	return Name + "/" + Version
}
