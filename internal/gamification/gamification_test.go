package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/users"
)

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) Publish(topic, kind string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, topic+"/"+kind)
}

func setupTest(t *testing.T) (*Engine, *db.DB, *users.User, *recordingPublisher) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	u, err := users.NewStore(database).Create(context.Background(), "ada", "Ada", "hash")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	pub := &recordingPublisher{}
	return NewEngine(database, pub), database, u, pub
}

func addRatedMovie(t *testing.T, database *db.DB, userID string, id int, genres string) {
	t.Helper()
	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `INSERT INTO movies (id, title, genres) VALUES (?, ?, ?)`, id, fmt.Sprintf("Film %d", id), genres); err != nil {
		t.Fatalf("insert movie: %v", err)
	}
	if _, err := database.ExecContext(ctx, `INSERT INTO ratings (user_id, movie_id, score) VALUES (?, ?, 8)`, userID, id); err != nil {
		t.Fatalf("insert rating: %v", err)
	}
}

func TestThresholdsAscend(t *testing.T) {
	if Thresholds[0] != 0 {
		t.Fatalf("expected level 1 at 0 xp, got %d", Thresholds[0])
	}
	for i := 1; i < len(Thresholds); i++ {
		if Thresholds[i] <= Thresholds[i-1] {
			t.Errorf("threshold %d (%d) not above %d", i, Thresholds[i], Thresholds[i-1])
		}
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{4999, 9},
		{5000, 10},
		{99999, 10},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.xp); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(120)
	if p.Level != 2 || p.LevelFloor != 100 || p.NextLevel != 250 || p.ToNext != 130 {
		t.Errorf("unexpected progress %+v", p)
	}
	top := ProgressFor(6000)
	if !top.Max || top.NextLevel != 0 {
		t.Errorf("expected max level progress, got %+v", top)
	}
}

func TestEvaluateSkipsCompleted(t *testing.T) {
	stats := Stats{Ratings: 12, Votes: 1}
	got := Evaluate(Missions, map[string]bool{"first_rating": true}, stats)

	ids := map[string]bool{}
	for _, m := range got {
		ids[m.ID] = true
	}
	if ids["first_rating"] {
		t.Error("expected completed mission to be skipped")
	}
	if !ids["critic_10"] || !ids["first_vote"] {
		t.Errorf("expected critic_10 and first_vote, got %v", ids)
	}
	if ids["critic_50"] {
		t.Error("critic_50 should not be satisfied by 12 ratings")
	}
}

func TestUnlocks(t *testing.T) {
	if Unlocked(1, FeatureTimelineGame) {
		t.Error("timeline should be locked at level 1")
	}
	if !Unlocked(2, FeatureTimelineGame) {
		t.Error("timeline should unlock at level 2")
	}
	u := &users.User{Level: 3}
	if err := CheckUnlock(u, FeatureTriviaHard); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
	u.IsAdmin = true
	if err := CheckUnlock(u, FeatureTriviaHard); err != nil {
		t.Errorf("expected admin bypass, got %v", err)
	}
	if got := len(UnlockedFeatures(10)); got != len(Features) {
		t.Errorf("expected all features at max level, got %d", got)
	}
}

func TestRefreshAwardsOnce(t *testing.T) {
	engine, database, u, pub := setupTest(t)
	ctx := context.Background()

	addRatedMovie(t, database, u.ID, 1, `["Dramma"]`)

	award, err := engine.Refresh(ctx, u.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(award.Missions) != 1 || award.Missions[0].ID != "first_rating" {
		t.Fatalf("expected first_rating, got %+v", award.Missions)
	}
	if award.XP != 20 || award.Level != 1 {
		t.Errorf("expected 20 xp at level 1, got %d at %d", award.XP, award.Level)
	}

	again, err := engine.Refresh(ctx, u.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(again.Missions) != 0 || again.XP != 20 {
		t.Errorf("expected no new award, got %+v", again)
	}

	stored, _ := users.NewStore(database).GetByID(ctx, u.ID)
	if stored.XP != 20 {
		t.Errorf("expected stored xp 20, got %d", stored.XP)
	}
	if len(pub.kinds) != 1 || pub.kinds[0] != "users/progress" {
		t.Errorf("expected one users/progress change, got %v", pub.kinds)
	}
}

func TestRefreshLevelsUp(t *testing.T) {
	engine, database, u, _ := setupTest(t)
	ctx := context.Background()

	genres := []string{`["Dramma"]`, `["Commedia"]`, `["Horror"]`, `["Western"]`, `["Noir"]`}
	for i := 1; i <= 10; i++ {
		addRatedMovie(t, database, u.ID, i, genres[i%len(genres)])
	}

	award, err := engine.Refresh(ctx, u.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// first_rating 20 + critic_10 60 + genre_explorer 70
	if award.XPGained != 150 {
		t.Errorf("expected 150 xp, got %d", award.XPGained)
	}
	if !award.LeveledUp() || award.Level != 2 {
		t.Errorf("expected level up to 2, got %d (from %d)", award.Level, award.PreviousLevel)
	}

	done, err := engine.Completed(ctx, u.ID)
	if err != nil {
		t.Fatalf("Completed: %v", err)
	}
	if len(done) != 3 {
		t.Errorf("expected 3 completed missions, got %d", len(done))
	}
}

func TestRefreshUnknownUser(t *testing.T) {
	engine, _, _, _ := setupTest(t)
	if _, err := engine.Refresh(context.Background(), "ghost"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("expected users.ErrNotFound, got %v", err)
	}
	if engine.Track(context.Background(), "ghost") != nil {
		t.Error("expected Track to swallow the error")
	}
}

func TestProgressRoute(t *testing.T) {
	engine, database, u, _ := setupTest(t)
	addRatedMovie(t, database, u.ID, 1, `["Dramma"]`)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(users.WithUser(req.Context(), u)))
		})
	})
	RegisterRoutes(r, engine)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/progress", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp progressResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.XP != 20 || resp.Stats.Ratings != 1 || len(resp.Missions) != 1 {
		t.Errorf("unexpected progress %+v", resp)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/missions", nil))
	var missions []missionStatus
	json.NewDecoder(rec.Body).Decode(&missions)
	if len(missions) != len(Missions) {
		t.Fatalf("expected %d missions, got %d", len(Missions), len(missions))
	}
	if !missions[0].Completed {
		t.Error("expected first_rating to be completed")
	}
}

func TestRequireUnlockMiddleware(t *testing.T) {
	u := &users.User{ID: "u1", Level: 1}
	h := RequireUnlock(FeatureTimelineGame)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req.WithContext(users.WithUser(req.Context(), u)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 at level 1, got %d", rec.Code)
	}

	u.Level = 2
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(users.WithUser(req.Context(), u)))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected access at level 2, got %d", rec.Code)
	}
}
