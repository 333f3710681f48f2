package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ahrs-ng/internal/ahrs"
	"ahrs-ng/internal/history"
	"ahrs-ng/internal/rotation"
)

// Orientation is the part of the AHRS service the web UI talks to.
// Implementations should be safe to call concurrently.
type Orientation interface {
	Snapshot() ahrs.Snapshot
	Reset(ctx context.Context) error
	SetDeviceRotation(ctx context.Context, r rotation.DeviceRotation) error
	Subscribe(buffer int) (int, <-chan ahrs.Snapshot)
	Unsubscribe(id int)
}

// History lists recent raw estimates.
type History interface {
	Entries(limit int) []history.Entry
	Total() uint64
}

const maxHistoryLimit = 5000

type HistoryResponse struct {
	Total   uint64          `json:"total"`
	Entries []history.Entry `json:"entries"`
}

type deviceRotationBody struct {
	DeviceRotation int `json:"device_rotation"`
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// Handler serves the JSON API, the websocket stream and a small index page.
// hist and logs may be nil.
func Handler(svc Orientation, hist History, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, svc.Snapshot())
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if hist == nil {
			http.Error(w, "history unavailable", http.StatusNotFound)
			return
		}
		limit := 100
		if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > maxHistoryLimit {
				http.Error(w, fmt.Sprintf("limit must be an integer in [1,%d]", maxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = v
		}
		entries := hist.Entries(limit)
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, HistoryResponse{Total: hist.Total(), Entries: entries})
	})

	mux.HandleFunc("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := svc.Reset(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})

	mux.HandleFunc("/api/device-rotation", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, deviceRotationBody{DeviceRotation: svc.Snapshot().DeviceRotation})
			return
		}
		var body deviceRotationBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		rot, err := rotation.ParseDeviceRotation(body.DeviceRotation)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := svc.SetDeviceRotation(ctx, rot); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, deviceRotationBody{DeviceRotation: int(rot)})
	})

	mux.Handle("/ws", StreamHandler(svc))

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	mux.Handle("/api/about", aboutHandler(svc))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := svc.Snapshot()
		o := snap.Orientation
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>", ServiceName)
		_, _ = fmt.Fprintf(w, "<h1>%s</h1>", ServiceName)
		_, _ = fmt.Fprintf(w, "<p>Live data: <a href=\"/api/orientation\">/api/orientation</a>, <a href=\"/api/history\">/api/history</a>, websocket <code>/ws</code>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>method=%s\nvalid=%t\ndevice_rotation=%d\nazimuth=%.1f\npitch=%.1f\nroll=%.1f\nsamples=%d\nlast_error=%s</pre>",
			html.EscapeString(string(snap.Method)), snap.Valid, snap.DeviceRotation, o.Azimuth, o.Pitch, o.Roll, snap.Samples,
			html.EscapeString(snap.LastError),
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, svc Orientation, hist History, logs *LogBuffer) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(svc, hist, logs),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
