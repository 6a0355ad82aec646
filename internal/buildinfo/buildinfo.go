// Package buildinfo reports the running binary's version for /debug/info and
// the startup log. Version, Commit and BuiltAt are set with -ldflags -X; when
// they are empty the VCS stamp embedded by the Go toolchain is used.
package buildinfo

import (
    "runtime"
    "runtime/debug"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

var readBuildInfo = debug.ReadBuildInfo

func Info() map[string]string {
    out := map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
    bi, ok := readBuildInfo()
    if !ok { return out }
    if bi.GoVersion != "" { out["goVersion"] = bi.GoVersion }
    if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" { out["version"] = bi.Main.Version }

    vcs := map[string]string{}
    for _, s := range bi.Settings { vcs[s.Key] = s.Value }
    if Commit == "" && vcs["vcs.revision"] != "" {
        out["commit"] = vcs["vcs.revision"]
        if vcs["vcs.modified"] == "true" { out["commit"] += "-dirty" }
    }
    if BuiltAt == "" { out["builtAt"] = vcs["vcs.time"] }
    return out
}
