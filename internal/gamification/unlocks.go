package gamification

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// ErrLocked is returned when a user's level is too low for a feature.
var ErrLocked = errors.New("feature locked")

// Feature names a level-gated capability.
type Feature string

const (
	FeatureTimelineGame      Feature = "timeline_game"
	FeatureProposeCandidate  Feature = "propose_candidate"
	FeatureAIRecommendations Feature = "ai_recommendations"
	FeatureTriviaHard        Feature = "trivia_hard"
)

// Features lists every gated feature in unlock order.
var Features = []Feature{
	FeatureTimelineGame,
	FeatureProposeCandidate,
	FeatureAIRecommendations,
	FeatureTriviaHard,
}

// Unlocks maps each feature to the level that unlocks it.
var Unlocks = map[Feature]int{
	FeatureTimelineGame:      2,
	FeatureProposeCandidate:  3,
	FeatureAIRecommendations: 4,
	FeatureTriviaHard:        5,
}

// Unlocked reports whether level gives access to f. Unknown features are open.
func Unlocked(level int, f Feature) bool {
	return level >= Unlocks[f]
}

// UnlockedFeatures returns the features available at level.
func UnlockedFeatures(level int) []Feature {
	out := []Feature{}
	for _, f := range Features {
		if Unlocked(level, f) {
			out = append(out, f)
		}
	}
	return out
}

// CheckUnlock returns an ErrLocked-wrapping error when u cannot use f.
// Admins bypass every gate.
func CheckUnlock(u *users.User, f Feature) error {
	if u.IsAdmin || Unlocked(u.Level, f) {
		return nil
	}
	return fmt.Errorf("%w: %s unlocks at level %d", ErrLocked, f, Unlocks[f])
}

// RequireUnlock is middleware that rejects users below the feature's level.
func RequireUnlock(f Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := users.FromContext(r.Context())
			if u == nil {
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if err := CheckUnlock(u, f); err != nil {
				httpx.Error(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
