package games

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/users"
)

type testEnv struct {
	svc   *Service
	db    *db.DB
	admin *users.User
	bob   *users.User
}

var library = []movies.Movie{
	{ID: 1, Title: "Stalker", Year: 1979, Director: "Andrei Tarkovsky"},
	{ID: 2, Title: "La dolce vita", Year: 1960, Director: "Federico Fellini"},
	{ID: 3, Title: "Ladri di biciclette", Year: 1948, Director: "Vittorio De Sica"},
	{ID: 4, Title: "Il buono, il brutto, il cattivo", Year: 1966, Director: "Sergio Leone"},
	{ID: 5, Title: "Amarcord", Year: 1973, Director: "Federico Fellini"},
	{ID: 6, Title: "Rashomon", Year: 1950, Director: "Akira Kurosawa"},
}

func setupTest(t *testing.T, provider llm.Provider) *testEnv {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	us := users.NewStore(database)
	admin, _ := us.Create(ctx, "ada", "Ada", "hash")
	bob, _ := us.Create(ctx, "bob", "Bob", "hash")

	films := movies.NewStore(database)
	for _, m := range library {
		if _, err := films.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	svc := NewService(NewStore(database), films, provider, "test-model", gamification.NewEngine(database, nil))
	return &testEnv{svc: svc, db: database, admin: admin, bob: bob}
}

func TestLibraryTrivia(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	round, err := env.svc.NewTrivia(ctx, env.bob, 0, "")
	if err != nil {
		t.Fatalf("NewTrivia: %v", err)
	}
	if round.Source != sourceLibrary {
		t.Errorf("expected library source, got %q", round.Source)
	}
	if round.Difficulty != DifficultyEasy {
		t.Errorf("expected easy default, got %q", round.Difficulty)
	}
	if len(round.Questions) != DefaultTriviaQuestions {
		t.Fatalf("expected %d questions, got %d", DefaultTriviaQuestions, len(round.Questions))
	}
	for i, q := range round.Questions {
		if !q.valid() {
			t.Errorf("question %d is malformed: %+v", i, q)
		}
	}
}

func TestAnswerTriviaOnce(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	round, err := env.svc.NewTrivia(ctx, env.bob, 0, DifficultyEasy)
	if err != nil {
		t.Fatalf("NewTrivia: %v", err)
	}

	answers := make([]int, len(round.Questions))
	for i, q := range round.Questions {
		answers[i] = q.Answer
	}
	answers[0] = (answers[0] + 1) % 4

	res, err := env.svc.AnswerTrivia(ctx, env.bob, round.ID, answers)
	if err != nil {
		t.Fatalf("AnswerTrivia: %v", err)
	}
	if res.Round.Correct != len(answers)-1 {
		t.Errorf("expected %d correct, got %d", len(answers)-1, res.Round.Correct)
	}
	if res.Results[0] || !res.Results[1] {
		t.Errorf("unexpected per-question results: %v", res.Results)
	}
	if res.Round.CompletedAt == nil {
		t.Error("expected round to be completed")
	}
	if res.Award == nil || len(res.Award.Missions) == 0 {
		t.Error("expected the first trivia round to complete a mission")
	}

	if _, err := env.svc.AnswerTrivia(ctx, env.bob, round.ID, answers); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("expected ErrAlreadyAnswered, got %v", err)
	}
}

func TestAnswerTriviaValidation(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	round, _ := env.svc.NewTrivia(ctx, env.bob, 0, DifficultyEasy)
	if _, err := env.svc.AnswerTrivia(ctx, env.bob, round.ID, []int{0}); !errors.Is(err, ErrAnswerCount) {
		t.Errorf("expected ErrAnswerCount, got %v", err)
	}
	if _, err := env.svc.AnswerTrivia(ctx, env.admin, round.ID, make([]int, len(round.Questions))); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected another user's round to be hidden, got %v", err)
	}
}

func TestHardTriviaIsGated(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	if _, err := env.svc.NewTrivia(ctx, env.bob, 0, DifficultyHard); !errors.Is(err, gamification.ErrLocked) {
		t.Errorf("expected ErrLocked at level 1, got %v", err)
	}

	veteran := *env.bob
	veteran.Level = gamification.Unlocks[gamification.FeatureTriviaHard]
	round, err := env.svc.NewTrivia(ctx, &veteran, 0, DifficultyHard)
	if err != nil {
		t.Fatalf("NewTrivia hard: %v", err)
	}
	if round.Difficulty != DifficultyHard {
		t.Errorf("expected hard round, got %q", round.Difficulty)
	}

	if _, err := env.svc.NewTrivia(ctx, env.bob, 0, "impossible"); !errors.Is(err, ErrDifficulty) {
		t.Errorf("expected ErrDifficulty, got %v", err)
	}
}

func TestLLMTrivia(t *testing.T) {
	reply := `{"questions":[
		{"question":"Chi ha diretto Stalker?","options":["Tarkovsky","Fellini","Leone","Kurosawa"],"answer":0},
		{"question":"Domanda rotta","options":["a","b"],"answer":5},
		{"question":"In che anno è uscito Stalker?","options":["1979","1972","1975","1983"],"answer":0}
	]}`
	mock := llm.NewMockProvider("mock", "```json\n"+reply+"\n```")
	env := setupTest(t, mock)

	round, err := env.svc.NewTrivia(context.Background(), env.bob, 1, DifficultyEasy)
	if err != nil {
		t.Fatalf("NewTrivia: %v", err)
	}
	if round.Source != sourceLLM {
		t.Fatalf("expected llm source, got %q", round.Source)
	}
	if len(round.Questions) != 2 {
		t.Errorf("expected the malformed question to be dropped, got %d", len(round.Questions))
	}
	if round.MovieID != 1 {
		t.Errorf("expected movie 1, got %d", round.MovieID)
	}

	req := mock.Calls[0]
	if !req.JSONMode {
		t.Error("expected JSON mode")
	}
	if !strings.Contains(req.Messages[1].Content, "Stalker") {
		t.Errorf("expected the film in the prompt, got %q", req.Messages[1].Content)
	}
}

func TestLLMFailureFallsBackToLibrary(t *testing.T) {
	mock := llm.NewMockProvider("mock")
	mock.Err = errors.New("provider down")
	env := setupTest(t, mock)

	round, err := env.svc.NewTrivia(context.Background(), env.bob, 0, DifficultyEasy)
	if err != nil {
		t.Fatalf("NewTrivia: %v", err)
	}
	if round.Source != sourceLibrary {
		t.Errorf("expected library fallback, got %q", round.Source)
	}
}

func TestTriviaUnknownMovie(t *testing.T) {
	env := setupTest(t, nil)
	if _, err := env.svc.NewTrivia(context.Background(), env.bob, 999, DifficultyEasy); !errors.Is(err, movies.ErrNotFound) {
		t.Errorf("expected movies.ErrNotFound, got %v", err)
	}
}

func TestTimeline(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	if _, err := env.svc.NewTimeline(ctx, env.bob); !errors.Is(err, gamification.ErrLocked) {
		t.Fatalf("expected ErrLocked at level 1, got %v", err)
	}

	player := *env.bob
	player.Level = gamification.Unlocks[gamification.FeatureTimelineGame]
	round, err := env.svc.NewTimeline(ctx, &player)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}
	if len(round.Films) != DefaultTimelineFilms {
		t.Fatalf("expected %d films, got %d", DefaultTimelineFilms, len(round.Films))
	}
	for _, f := range round.Films {
		if f.Year != 0 {
			t.Fatal("years must not be revealed before submission")
		}
	}

	years := make(map[int64]int)
	for _, m := range library {
		years[m.ID] = m.Year
	}
	order := make([]int64, len(round.Films))
	for i, f := range round.Films {
		order[i] = f.MovieID
	}
	// Sort chronologically, then swap the last two to lose two points.
	for i := range order {
		for j := i + 1; j < len(order); j++ {
			if years[order[j]] < years[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	n := len(order)
	order[n-1], order[n-2] = order[n-2], order[n-1]

	if _, err := env.svc.SubmitTimeline(ctx, &player, round.ID, order[:n-1]); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder, got %v", err)
	}

	res, err := env.svc.SubmitTimeline(ctx, &player, round.ID, order)
	if err != nil {
		t.Fatalf("SubmitTimeline: %v", err)
	}
	if res.Round.Score != n-2 || res.Round.Perfect {
		t.Errorf("expected score %d and not perfect, got %d perfect=%v", n-2, res.Round.Score, res.Round.Perfect)
	}
	for i := 1; i < len(res.Solution); i++ {
		if res.Solution[i-1].Year > res.Solution[i].Year {
			t.Errorf("solution not chronological: %+v", res.Solution)
		}
	}

	if _, err := env.svc.SubmitTimeline(ctx, &player, round.ID, order); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("expected ErrAlreadyAnswered, got %v", err)
	}
}

func TestTimelinePerfect(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()

	round, err := env.svc.NewTimeline(ctx, env.admin)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}
	years := make(map[int64]int)
	for _, m := range library {
		years[m.ID] = m.Year
	}
	order := make([]int64, 0, len(round.Films))
	for _, f := range round.Films {
		order = append(order, f.MovieID)
	}
	for i := range order {
		for j := i + 1; j < len(order); j++ {
			if years[order[j]] < years[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	res, err := env.svc.SubmitTimeline(ctx, env.admin, round.ID, order)
	if err != nil {
		t.Fatalf("SubmitTimeline: %v", err)
	}
	if !res.Round.Perfect || res.Round.Score != len(order) {
		t.Errorf("expected a perfect round, got %+v", res.Round)
	}

	stats, err := env.svc.engine.Stats(ctx, env.admin.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TimelineGames != 1 || stats.TimelinePerfect != 1 {
		t.Errorf("expected timeline stats 1/1, got %+v", stats)
	}
}

func TestRoundsWithoutEngine(t *testing.T) {
	env := setupTest(t, nil)
	ctx := context.Background()
	env.svc.engine = nil

	round, err := env.svc.NewTrivia(ctx, env.bob, 0, DifficultyEasy)
	if err != nil {
		t.Fatalf("NewTrivia: %v", err)
	}
	answers := make([]int, len(round.Questions))
	res, err := env.svc.AnswerTrivia(ctx, env.bob, round.ID, answers)
	if err != nil {
		t.Fatalf("AnswerTrivia: %v", err)
	}
	if res.Award != nil {
		t.Errorf("expected no award without an engine, got %+v", res.Award)
	}

	tl, err := env.svc.NewTimeline(ctx, env.admin)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}
	order := make([]int64, 0, len(tl.Films))
	for _, f := range tl.Films {
		order = append(order, f.MovieID)
	}
	tres, err := env.svc.SubmitTimeline(ctx, env.admin, tl.ID, order)
	if err != nil {
		t.Fatalf("SubmitTimeline: %v", err)
	}
	if tres.Award != nil {
		t.Errorf("expected no award without an engine, got %+v", tres.Award)
	}
}

func TestTimelineNeedsEnoughFilms(t *testing.T) {
	env := setupTest(t, nil)
	env.svc.TimelineFilms = 10
	if _, err := env.svc.NewTimeline(context.Background(), env.admin); !errors.Is(err, ErrNotEnoughFilms) {
		t.Errorf("expected ErrNotEnoughFilms, got %v", err)
	}
}

func TestRoutes(t *testing.T) {
	env := setupTest(t, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			member := *env.bob
			next.ServeHTTP(w, req.WithContext(users.WithUser(req.Context(), &member)))
		})
	})
	RegisterRoutes(r, env.svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/trivia", strings.NewReader(`{"difficulty":"easy"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"answer"`) {
		t.Errorf("unanswered round must not leak solutions: %s", rec.Body.String())
	}
	var created struct {
		ID        string           `json:"id"`
		Questions []PublicQuestion `json:"questions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	body := `{"answers":[` + strings.TrimSuffix(strings.Repeat("0,", len(created.Questions)), ",") + `]}`
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/trivia/"+created.ID+"/answers", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/trivia/"+created.ID, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"answer"`) {
		t.Errorf("expected answered round to include solutions, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/trivia/"+created.ID+"/answers", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on second answer, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games/timeline", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a level 1 timeline, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/trivia/"+strconv.Itoa(42), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
