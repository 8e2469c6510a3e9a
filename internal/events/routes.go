package events

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the cineforum event routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", handleList(svc))
		r.Get("/current", handleCurrent(svc))
		r.Get("/{id}", handleGet(svc))
		r.Get("/{id}/tally", handleTally(svc))

		r.Group(func(r chi.Router) {
			r.Use(users.RequireUser)
			r.Post("/{id}/candidates", handleAddCandidate(svc))
			r.Put("/{id}/vote", handleVote(svc))
			r.Delete("/{id}/vote", handleUnvote(svc))
			r.Post("/{id}/attend", handleAttend(svc))
		})

		r.Group(func(r chi.Router) {
			r.Use(users.RequireAdmin)
			r.Post("/", handleCreate(svc))
			r.Post("/{id}/advance", handleAdvance(svc))
		})
	})
}

// writeError maps event errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrPhaseConflict),
		errors.Is(err, ErrActiveEvent), errors.Is(err, ErrNotVoting),
		errors.Is(err, ErrVotingClosed), errors.Is(err, ErrDuplicateCandidate),
		errors.Is(err, ErrNotWatchable), errors.Is(err, ErrNoCandidates):
		status = http.StatusConflict
	case errors.Is(err, ErrNotCandidate), errors.Is(err, ErrTooFewCandidates),
		errors.Is(err, ErrUnknownMovie), errors.Is(err, ErrPastDeadline):
		status = http.StatusBadRequest
	case errors.Is(err, gamification.ErrLocked):
		status = http.StatusForbidden
	}
	httpx.Error(w, status, err.Error())
}

func handleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase := Phase(r.URL.Query().Get("phase"))
		if phase != "" && !phase.Valid() {
			httpx.Error(w, http.StatusBadRequest, "invalid phase")
			return
		}
		list, err := svc.store.List(r.Context(), phase, httpx.IntQuery(r, "limit", 20))
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []Event{}
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

type eventResponse struct {
	*Event
	Tally  []TallyEntry `json:"tally"`
	MyVote int64        `json:"my_vote,omitempty"`
}

func respondEvent(svc *Service, w http.ResponseWriter, r *http.Request, e *Event) {
	t, err := svc.store.Tally(r.Context(), e.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := eventResponse{Event: e, Tally: t}
	if u := users.FromContext(r.Context()); u != nil {
		if resp.MyVote, err = svc.store.UserVote(r.Context(), e.ID, u.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func handleCurrent(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.store.Current(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if e == nil {
			httpx.Error(w, http.StatusNotFound, "no open event")
			return
		}
		respondEvent(svc, w, r, e)
	}
}

func handleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondEvent(svc, w, r, e)
	}
}

func handleTally(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.Tally(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

type createRequest struct {
	Title          string     `json:"title" validate:"required,max=120"`
	Theme          string     `json:"theme" validate:"max=500"`
	VotingDeadline *time.Time `json:"voting_deadline"`
	MovieIDs       []int64    `json:"movie_ids" validate:"required,min=2,dive,gt=0"`
}

func handleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		in := CreateInput{Title: req.Title, Theme: req.Theme, MovieIDs: req.MovieIDs}
		if req.VotingDeadline != nil {
			in.Deadline = *req.VotingDeadline
		}

		e, err := svc.Create(r.Context(), users.FromContext(r.Context()), in)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, e)
	}
}

type candidateRequest struct {
	MovieID int64 `json:"movie_id" validate:"required,gt=0"`
}

func handleAddCandidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req candidateRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		c, err := svc.AddCandidate(r.Context(), users.FromContext(r.Context()), chi.URLParam(r, "id"), req.MovieID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, c)
	}
}

type voteRequest struct {
	MovieID int64 `json:"movie_id" validate:"required,gt=0"`
}

func handleVote(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req voteRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		t, err := svc.Vote(r.Context(), chi.URLParam(r, "id"), users.FromContext(r.Context()).ID, req.MovieID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func handleUnvote(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.Unvote(r.Context(), chi.URLParam(r, "id"), users.FromContext(r.Context()).ID)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func handleAttend(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Attend(r.Context(), chi.URLParam(r, "id"), users.FromContext(r.Context()).ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type advanceRequest struct {
	To Phase `json:"to" validate:"required,oneof=viewing discussion closed"`
}

func handleAdvance(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req advanceRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		e, err := svc.Advance(r.Context(), chi.URLParam(r, "id"), req.To)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, e)
	}
}
