package http

import (
	"context"
	"net/http"
	"strconv"

	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

// EventLister reads the event log after a sequence number.
type EventLister interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// GET /events?after=<seq>&limit=100
func ListEventsHandler(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after int64
		if s := r.URL.Query().Get("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				writeError(w, r, badRequest("after must be a non-negative integer"))
				return
			}
			after = v
		}
		list, err := events.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next := after
		if n := len(list); n > 0 {
			next = list[n-1].Seq
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": list, "next": next})
	}
}
