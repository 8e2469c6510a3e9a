package similar

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/movies"
)

// RegisterRoutes mounts the similar-films route.
func RegisterRoutes(r chi.Router, x *Index) {
	r.Get("/api/movies/{id}/similar", handleSimilar(x))
}

func handleSimilar(x *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !x.Enabled() {
			httpx.Error(w, http.StatusServiceUnavailable, ErrDisabled.Error())
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid movie id")
			return
		}
		limit := httpx.IntQuery(r, "limit", 5)
		if limit > 20 {
			limit = 20
		}

		results, err := x.Similar(r.Context(), id, limit)
		if errors.Is(err, movies.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httpx.Error(w, http.StatusBadGateway, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, results)
	}
}
