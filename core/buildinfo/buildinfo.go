// Package buildinfo carries the version stamped into the binary.
//
// Release builds set the variables with -ldflags:
//
//	-X 'github.com/m3rciful/gatebot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/gatebot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/gatebot/core/buildinfo.Date=2025-08-30T12:00:00Z'
package buildinfo

import (
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = "local"
	// Date is the build time in RFC3339.
	Date = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
}

var resolve = sync.OnceValue(func() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "local" && s.Value != "":
			info.Commit = s.Value[:min(len(s.Value), 12)]
		case s.Key == "vcs.time" && info.Date == "":
			info.Date = s.Value
		}
	}
	return info
})

// Get returns the ldflags values, filling the ones left at their defaults
// from the module and VCS data the Go toolchain embeds.
func Get() Info {
	return resolve()
}
