package gamification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the progress API routes.
func RegisterRoutes(r chi.Router, engine *Engine) {
	r.Get("/api/levels", handleLevels())
	r.With(users.RequireUser).Get("/api/missions", handleMissions(engine))
	r.With(users.RequireUser).Get("/api/me/progress", handleProgress(engine))
}

func handleLevels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, Table())
	}
}

type missionStatus struct {
	Mission
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func handleMissions(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := users.FromContext(r.Context())
		done, err := engine.Completed(r.Context(), u.ID)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		at := make(map[string]time.Time, len(done))
		for _, c := range done {
			at[c.ID] = c.CompletedAt
		}

		out := make([]missionStatus, 0, len(engine.missions))
		for _, m := range engine.missions {
			s := missionStatus{Mission: m}
			if t, ok := at[m.ID]; ok {
				s.Completed = true
				s.CompletedAt = &t
			}
			out = append(out, s)
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

type progressResponse struct {
	Progress
	Stats    Stats              `json:"stats"`
	Missions []CompletedMission `json:"completed_missions"`
	Unlocked []Feature          `json:"unlocked"`
}

func handleProgress(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := users.FromContext(r.Context())

		// Missions may have become due through actions that did not
		// trigger an evaluation, e.g. a film getting more genres.
		award, err := engine.Refresh(r.Context(), u.ID)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats, err := engine.Stats(r.Context(), u.ID)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		done, err := engine.Completed(r.Context(), u.ID)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}

		httpx.WriteJSON(w, http.StatusOK, progressResponse{
			Progress: ProgressFor(award.XP),
			Stats:    stats,
			Missions: done,
			Unlocked: UnlockedFeatures(award.Level),
		})
	}
}
