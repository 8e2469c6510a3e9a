package chat

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the chat routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/chat/{room}/messages", func(r chi.Router) {
		r.Use(users.RequireUser)
		r.Get("/", handleHistory(svc))
		r.Post("/", handlePost(svc))
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRoom):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRoomReadOnly):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		httpx.Error(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrTooLong):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		httpx.Error(w, http.StatusInternalServerError, err.Error())
	}
}

func handleHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var before time.Time
		if v := r.URL.Query().Get("before"); v != "" {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				httpx.Error(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
				return
			}
			before = t
		}
		msgs, err := svc.History(r.Context(), chi.URLParam(r, "room"), before, httpx.IntQuery(r, "limit", 50))
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, msgs)
	}
}

type postRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func handlePost(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		m, err := svc.Post(r.Context(), users.FromContext(r.Context()), chi.URLParam(r, "room"), req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, m)
	}
}
