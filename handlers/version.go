package handlers

import (
	"net/http"
	"runtime/debug"
	"sync"
)

// Version is set at build time with -ldflags "-X plexfront/handlers.Version=...".
var Version string

var versionOnce sync.Once

type VersionResponse struct {
	Version string `json:"version"`
}

// BackendVersion returns the linked version, falling back to the module
// build info.
func BackendVersion() string {
	versionOnce.Do(func() {
		if Version != "" {
			return
		}
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
			return
		}
		Version = "unknown"
	})
	return Version
}

func GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: BackendVersion()})
}
