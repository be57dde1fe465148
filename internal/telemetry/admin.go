package telemetry

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/range.report/internal/httputil"
)

// tailQueueSize bounds the queue of a debug tail; a slow browser drops
// frames rather than holding the hub.
const tailQueueSize = 64

// AttachAdminRoutes adds hub endpoints under /debug/ on mux:
//
//	/debug/telemetry  hub counters as JSON
//	/debug/tail       live frames as server-sent events (?prefix=)
//
// tsweb limits /debug/ to loopback and tailnet clients.
func (h *Hub) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("telemetry", "telemetry hub counters", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		httputil.WriteJSONOK(w, h.Stats())
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		sub, err := h.SubscribeQueue(r.URL.Query().Get("prefix"), tailQueueSize)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		defer h.Unsubscribe(sub.ID)
		httputil.StreamLines(w, r, sub.C)
	})
}
