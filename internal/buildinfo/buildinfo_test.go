package buildinfo

import (
	"runtime/debug"
	"testing"
)

func stubBuildInfo(t *testing.T, bi *debug.BuildInfo, ok bool) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, ok }
	t.Cleanup(func() { readBuildInfo = prev })
}

func TestInfoFallsBackToVCSStamp(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.23.4",
		Main:      debug.Module{Path: "routecap", Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2025-03-10T09:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}, true)

	got := Info()
	want := map[string]string{"version": "v0.4.1", "commit": "abc123-dirty", "builtAt": "2025-03-10T09:00:00Z", "goVersion": "go1.23.4"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestInfoPrefersLinkerValues(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	}, true)
	Version, Commit, BuiltAt = "1.2.0", "f00d", "yesterday"
	t.Cleanup(func() { Version, Commit, BuiltAt = "dev", "", "" })

	got := Info()
	if got["version"] != "1.2.0" || got["commit"] != "f00d" || got["builtAt"] != "yesterday" {
		t.Fatalf("linker values overridden: %v", got)
	}
	if got["goVersion"] == "" {
		t.Fatalf("goVersion missing")
	}
}

func TestInfoWithoutBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil, false)
	got := Info()
	if got["version"] != "dev" || got["commit"] != "" || got["goVersion"] == "" {
		t.Fatalf("unexpected %v", got)
	}
}
