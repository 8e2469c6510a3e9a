package leaderboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/httpx"
)

// RegisterRoutes mounts the leaderboard routes.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/leaderboard", func(r chi.Router) {
		r.Get("/xp", handle(func(r *http.Request) (any, error) {
			return store.TopUsersByXP(r.Context(), httpx.IntQuery(r, "limit", 10))
		}))
		r.Get("/films", handle(func(r *http.Request) (any, error) {
			return store.TopRatedFilms(r.Context(), httpx.IntQuery(r, "min_ratings", 2), httpx.IntQuery(r, "limit", 10))
		}))
		r.Get("/raters", handle(func(r *http.Request) (any, error) {
			return store.MostActiveRaters(r.Context(), httpx.IntQuery(r, "limit", 10))
		}))
		r.Get("/trivia", handle(func(r *http.Request) (any, error) {
			return store.TriviaChampions(r.Context(), httpx.IntQuery(r, "limit", 10))
		}))
		r.Get("/winners", handle(func(r *http.Request) (any, error) {
			return store.PastWinners(r.Context(), httpx.IntQuery(r, "limit", 10))
		}))
	})
}

func handle(fn func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(r)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, v)
	}
}
