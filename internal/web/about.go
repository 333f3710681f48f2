package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"ahrs-ng/internal/filter"
)

const ServiceName = "ahrs-ng"

type AboutResponse struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`

	// Method is the running estimator; Methods lists every selectable one.
	Method  filter.Method   `json:"method"`
	Methods []filter.Method `json:"methods"`
}

func aboutHandler(svc Orientation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		resp := AboutResponse{
			Service:   ServiceName,
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
			Method:    svc.Snapshot().Method,
			Methods:   filter.Methods,
		}
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			resp.Version = bi.Main.Version
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					resp.Commit = s.Value
				case "vcs.modified":
					resp.Dirty = s.Value == "true"
				}
			}
		}
		writeJSON(w, resp)
	}
}
