package content

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the news, theme and recommendation routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/api/news", handleNews(svc))
	r.With(users.RequireAdmin).Post("/api/news", handleGenerateNews(svc))
	r.With(users.RequireAdmin).Post("/api/themes/suggest", handleSuggestTheme(svc))
	r.With(users.RequireUser, gamification.RequireUnlock(gamification.FeatureAIRecommendations)).
		Get("/api/me/recommendations", handleRecommend(svc))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoProvider):
		httpx.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNoRatings):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, gamification.ErrLocked):
		httpx.Error(w, http.StatusForbidden, err.Error())
	default:
		// Generation failures are the provider's, not ours.
		httpx.Error(w, http.StatusBadGateway, err.Error())
	}
}

func handleNews(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.News(r.Context(), httpx.IntQuery(r, "limit", 10))
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Article{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func handleGenerateNews(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GenerateNews(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, a)
	}
}

type suggestThemeRequest struct {
	Hint string `json:"hint" validate:"max=200"`
}

func handleSuggestTheme(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req suggestThemeRequest
		if r.ContentLength != 0 && !httpx.Decode(w, r, &req) {
			return
		}
		theme, err := svc.SuggestTheme(r.Context(), req.Hint)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, theme)
	}
}

func handleRecommend(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.Recommend(r.Context(), users.FromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, recs)
	}
}
