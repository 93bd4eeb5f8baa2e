// Package prof pushes continuous profiles to Pyroscope.
package prof

import (
	"context"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/version"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

type Options struct {
	Enabled   bool
	Server    string
	TenantID  string
	Component string
	Build     version.Info

	// MutexFraction and BlockRate turn on the runtime's mutex and block
	// profiles. Zero leaves both off and they are not uploaded.
	MutexFraction int
	BlockRate     int
}

// Stop flushes and stops the profiler. It is never nil.
type Stop func()

func noop() {}

// Start begins uploading. The logger comes from ctx.
func Start(ctx context.Context, o Options) (Stop, error) {
	L := log.FromContext(ctx)
	if !o.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}
	if o.Server == "" {
		return noop, xerrors.New("pyroscope server address is empty")
	}

	if o.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(o.MutexFraction)
	}
	if o.BlockRate > 0 {
		runtime.SetBlockProfileRate(o.BlockRate)
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: o.Build.AppName,
		ServerAddress:   o.Server,
		TenantID:        o.TenantID,
		Tags:            tags(o),
		ProfileTypes:    profileTypes(o),
	})
	if err != nil {
		return noop, xerrors.Wrapf(err, "start pyroscope for %s", o.Server)
	}
	L.Info(ctx, "pyroscope started", "server_address", o.Server, "app_name", o.Build.AppName)

	return func() {
		p.Stop()
		L.Info(context.Background(), "pyroscope stopped")
	}, nil
}

func tags(o Options) map[string]string {
	t := map[string]string{
		"app":       o.Build.AppName,
		"component": o.Component,
		"version":   o.Build.Version,
		"commit":    o.Build.Commit,
		"source":    "go-agent",
	}
	if o.Build.BuildId != "" {
		t["build_id"] = o.Build.BuildId
	}
	return t
}

func profileTypes(o Options) []pyroscope.ProfileType {
	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if o.MutexFraction > 0 {
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if o.BlockRate > 0 {
		types = append(types, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return types
}
