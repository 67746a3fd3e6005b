package buildinfo

import (
    "runtime"
    "runtime/debug"
)

// Set with -ldflags "-X fieldroute/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info reports the linker-stamped values, falling back to the VCS data the
// Go toolchain embeds when Commit was not stamped.
func Info() map[string]string {
    out := map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
    if bi, ok := debug.ReadBuildInfo(); ok {
        for _, s := range bi.Settings {
            switch s.Key {
            case "vcs.revision":
                if out["commit"] == "" { out["commit"] = s.Value }
            case "vcs.time":
                if out["builtAt"] == "" { out["builtAt"] = s.Value }
            case "vcs.modified":
                out["dirty"] = s.Value
            }
        }
    }
    return out
}
