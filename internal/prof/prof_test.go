package prof

import (
	"context"
	"slices"
	"testing"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-docs/internal/version"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{Server: "", MutexFraction: 5})
	if err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	stop()
	stop()
}

func TestStart_MissingServer(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: true})
	if err == nil {
		t.Fatal("enabled without a server address succeeded")
	}
	if stop == nil {
		t.Fatal("nil stop on error")
	}
	stop()
}

func TestTags(t *testing.T) {
	o := Options{
		Component: "server",
		Build:     version.Info{AppName: version.AppName, Version: "1.3.0", Commit: "9f1c2d"},
	}
	got := tags(o)
	want := map[string]string{
		"app": "linnemanlabs-docs", "component": "server", "version": "1.3.0",
		"commit": "9f1c2d", "source": "go-agent",
	}
	if len(got) != len(want) {
		t.Fatalf("tags = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	o.Build.BuildId = "b-42"
	if tags(o)["build_id"] != "b-42" {
		t.Error("build_id not tagged")
	}
}

func TestProfileTypes(t *testing.T) {
	base := profileTypes(Options{})
	if !slices.Contains(base, pyroscope.ProfileCPU) || !slices.Contains(base, pyroscope.ProfileInuseSpace) {
		t.Fatalf("base types = %v", base)
	}
	if slices.Contains(base, pyroscope.ProfileMutexCount) || slices.Contains(base, pyroscope.ProfileBlockCount) {
		t.Errorf("mutex or block profiles uploaded while off: %v", base)
	}

	withMutex := profileTypes(Options{MutexFraction: 5})
	if !slices.Contains(withMutex, pyroscope.ProfileMutexDuration) || slices.Contains(withMutex, pyroscope.ProfileBlockDuration) {
		t.Errorf("mutex only = %v", withMutex)
	}
	both := profileTypes(Options{MutexFraction: 5, BlockRate: 1})
	if len(both) != len(base)+4 {
		t.Errorf("both = %v", both)
	}
}
