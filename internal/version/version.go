// Package version carries build metadata. Release builds stamp it with
// -ldflags; local builds fall back to what the toolchain recorded.
package version

import (
	"fmt"
	"runtime/debug"
)

// AppName is used for logs, traces, profiles and build_info.
const AppName = "linnemanlabs-docs"

// Set with -ldflags "-X .../internal/version.Version=..." by the release build.
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	AppName    string `json:"app_name"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Released reports whether this binary was stamped by the release build
// rather than built locally with go build.
func (i Info) Released() bool {
	return i.Version != "dev" && i.BuildId != ""
}

// Dirty is false when the tree state is unknown.
func (i Info) Dirty() bool {
	return i.VCSDirty != nil && *i.VCSDirty
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)",
		i.AppName, i.Version, i.Commit, i.CommitDate, i.BuildId, i.BuildDate, i.GoVersion, i.Dirty())
}

// LogFields is the build metadata as logger key/value pairs.
func (i Info) LogFields() []any {
	return []any{
		"version", i.Version,
		"commit", i.Commit,
		"commit_date", i.CommitDate,
		"build_id", i.BuildId,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"vcs_dirty", i.Dirty(),
	}
}

func Get() Info {
	i := Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		i.GoVersion = bi.GoVersion
		i.backfill(bi.Settings)
	}
	return i
}

// backfill fills what -ldflags left unset from the vcs.* settings the go
// command records. Stamped values win, except the tree state which the
// toolchain knows better.
func (i *Info) backfill(settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" {
				i.Commit = s.Value
			}
		case "vcs.time":
			i.CommitDate = s.Value
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" || s.Value == "false" {
				dirty := s.Value == "true"
				i.VCSDirty = &dirty
			}
		}
	}
}
