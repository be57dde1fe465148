package journal

import (
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/range.report/internal/httputil"
)

const defaultRecent = 50

// AttachAdminRoutes adds /debug/journal, the most recent transitions as
// JSON (?limit=, default 50).
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("journal", "recent driver state transitions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		limit := defaultRecent
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		events, err := j.Recent(limit)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []Event{}
		}
		httputil.WriteJSONOK(w, events)
	})
}
