package posefeed

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/ringcapture/internal/sse"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts /debug/pose-tail (server-sent raw pose lines)
// and /debug/pose-stats.
func (f *Feed) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("pose-stats", "Pose feed counters", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.Stats())
	}))

	debug.HandleSilentFunc("pose-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, c := f.Subscribe()
		defer f.Unsubscribe(id)

		st, err := sse.Open(w)
		if err != nil {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		sse.Relay(r.Context(), st, c, func(line string) (string, []byte, error) {
			return "", []byte(line), nil
		})
	})
}
