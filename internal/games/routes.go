package games

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the mini-game routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/games", func(r chi.Router) {
		r.Use(users.RequireUser)

		r.Post("/trivia", handleNewTrivia(svc))
		r.Get("/trivia/{id}", handleGetTrivia(svc))
		r.Post("/trivia/{id}/answers", handleAnswerTrivia(svc))

		r.Group(func(r chi.Router) {
			r.Use(gamification.RequireUnlock(gamification.FeatureTimelineGame))
			r.Post("/timeline", handleNewTimeline(svc))
			r.Post("/timeline/{id}/answers", handleSubmitTimeline(svc))
		})
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, movies.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyAnswered):
		status = http.StatusConflict
	case errors.Is(err, ErrAnswerCount), errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrDifficulty):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotEnoughFilms):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, gamification.ErrLocked):
		status = http.StatusForbidden
	}
	httpx.Error(w, status, err.Error())
}

type triviaResponse struct {
	*TriviaRound
	Questions []PublicQuestion `json:"questions"`
}

type newTriviaRequest struct {
	MovieID    int64      `json:"movie_id" validate:"min=0"`
	Difficulty Difficulty `json:"difficulty" validate:"omitempty,oneof=easy hard"`
}

func handleNewTrivia(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newTriviaRequest
		if r.ContentLength != 0 && !httpx.Decode(w, r, &req) {
			return
		}
		round, err := svc.NewTrivia(r.Context(), users.FromContext(r.Context()), req.MovieID, req.Difficulty)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, triviaResponse{TriviaRound: round, Questions: round.Public()})
	}
}

func handleGetTrivia(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := svc.GetTrivia(r.Context(), users.FromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if round.CompletedAt != nil {
			// Answered rounds reveal their solutions.
			httpx.WriteJSON(w, http.StatusOK, struct {
				*TriviaRound
				Questions []Question `json:"questions"`
			}{round, round.Questions})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, triviaResponse{TriviaRound: round, Questions: round.Public()})
	}
}

type answerTriviaRequest struct {
	Answers []int `json:"answers" validate:"required"`
}

func handleAnswerTrivia(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerTriviaRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		res, err := svc.AnswerTrivia(r.Context(), users.FromContext(r.Context()), chi.URLParam(r, "id"), req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, res)
	}
}

func handleNewTimeline(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := svc.NewTimeline(r.Context(), users.FromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, round)
	}
}

type submitTimelineRequest struct {
	Order []int64 `json:"order" validate:"required,min=2"`
}

func handleSubmitTimeline(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitTimelineRequest
		if !httpx.Decode(w, r, &req) {
			return
		}
		res, err := svc.SubmitTimeline(r.Context(), users.FromContext(r.Context()), chi.URLParam(r, "id"), req.Order)
		if err != nil {
			writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, res)
	}
}
