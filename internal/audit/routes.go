package audit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the activity trail at /api/activity.
func RegisterRoutes(r chi.Router, store *Store) {
	r.With(users.RequireUser).Get("/api/activity", handleQuery(store))
}

func handleQuery(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := QueryFilter{
			Topic:  q.Get("topic"),
			Kind:   q.Get("kind"),
			Limit:  min(httpx.IntQuery(r, "limit", 50), 200),
			Offset: httpx.IntQuery(r, "offset", 0),
		}
		if v := q.Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.Error(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
				return
			}
			filter.Since = &t
		}

		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		httpx.WriteJSON(w, http.StatusOK, entries)
	}
}
