package movies

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the film library and rating routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/api/movies", handleList(svc.store))
	r.Get("/api/movies/{id}", handleGet(svc.store))
	r.Get("/api/movies/{id}/ratings", handleFilmRatings(svc.store))
	r.Get("/api/users/{id}/ratings", handleUserRatings(svc.store))

	r.Group(func(r chi.Router) {
		r.Use(users.RequireUser)
		r.Get("/api/catalog/search", handleSearch(svc))
		r.Put("/api/movies/{id}/rating", handleRate(svc))
		r.Delete("/api/movies/{id}/rating", handleDeleteRating(svc.store))
	})

	r.With(users.RequireAdmin).Post("/api/movies/import", handleImport(svc))
}

func movieID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Query:  q.Get("q"),
			Genre:  q.Get("genre"),
			Year:   httpx.IntQuery(r, "year", 0),
			Limit:  httpx.IntQuery(r, "limit", 50),
			Offset: httpx.IntQuery(r, "offset", 0),
		}
		list, err := store.List(r.Context(), filter)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Movie{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

type movieResponse struct {
	*Movie
	Ratings Summary `json:"ratings"`
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(r)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "invalid movie id")
			return
		}
		m, err := store.Get(r.Context(), id)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if m == nil {
			httpx.Error(w, http.StatusNotFound, "not found")
			return
		}
		sum, err := store.FilmSummary(r.Context(), id)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, movieResponse{Movie: m, Ratings: sum})
	}
}

func handleFilmRatings(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(r)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "invalid movie id")
			return
		}
		list, err := store.FilmRatings(r.Context(), id)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Rating{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func handleUserRatings(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.UserRatings(r.Context(), chi.URLParam(r, "id"), httpx.IntQuery(r, "limit", 0))
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Rating{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func handleSearch(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpx.Error(w, http.StatusBadRequest, "q is required")
			return
		}
		results, err := svc.Search(r.Context(), q)
		if errors.Is(err, ErrNoCatalog) {
			httpx.Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if err != nil {
			httpx.Error(w, http.StatusBadGateway, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, results)
	}
}

type rateRequest struct {
	Score  int    `json:"score" validate:"min=1,max=10"`
	Review string `json:"review" validate:"max=4000"`
}

type rateResponse struct {
	Rating *Rating             `json:"rating"`
	Award  *gamification.Award `json:"award,omitempty"`
}

func handleRate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(r)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "invalid movie id")
			return
		}
		var req rateRequest
		if !httpx.Decode(w, r, &req) {
			return
		}

		u := users.FromContext(r.Context())
		rating, award, err := svc.Rate(r.Context(), u.ID, id, req.Score, req.Review)
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, ErrInvalidScore):
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, rateResponse{Rating: rating, Award: award})
	}
}

func handleDeleteRating(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(r)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "invalid movie id")
			return
		}
		u := users.FromContext(r.Context())
		if err := store.DeleteRating(r.Context(), u.ID, id); err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type importRequest struct {
	ID    int64 `json:"id" validate:"required_without=Pages"`
	Pages int   `json:"pages" validate:"omitempty,min=1,max=20"`
}

type importResponse struct {
	Imported int    `json:"imported"`
	Movie    *Movie `json:"movie,omitempty"`
}

func handleImport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importRequest
		if !httpx.Decode(w, r, &req) {
			return
		}

		if req.ID > 0 {
			m, err := svc.ImportFromCatalog(r.Context(), req.ID)
			switch {
			case errors.Is(err, ErrNotFound):
				httpx.Error(w, http.StatusNotFound, err.Error())
			case errors.Is(err, ErrNoCatalog):
				httpx.Error(w, http.StatusServiceUnavailable, err.Error())
			case err != nil:
				httpx.Error(w, http.StatusBadGateway, err.Error())
			default:
				httpx.WriteJSON(w, http.StatusCreated, importResponse{Imported: 1, Movie: m})
			}
			return
		}

		n, err := svc.ImportPopular(r.Context(), req.Pages, nil)
		if errors.Is(err, ErrNoCatalog) {
			httpx.Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if err != nil {
			httpx.Error(w, http.StatusBadGateway, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, importResponse{Imported: n})
	}
}
