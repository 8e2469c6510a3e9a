package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/users"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []string
}

func (p *recordingPublisher) Publish(topic, kind string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, topic+"/"+kind)
}

func (p *recordingPublisher) has(change string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.changes {
		if c == change {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc   *Service
	db    *db.DB
	pub   *recordingPublisher
	admin *users.User
	bob   *users.User
	carla *users.User
	clock time.Time
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	return setupWith(t, database)
}

// setupFileTest runs against a file database with a real connection pool.
func setupFileTest(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "club.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return setupWith(t, database)
}

func setupWith(t *testing.T, database *db.DB) *testEnv {
	t.Helper()
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	us := users.NewStore(database)
	admin, _ := us.Create(ctx, "ada", "Ada", "hash")
	bob, _ := us.Create(ctx, "bob", "Bob", "hash")
	carla, _ := us.Create(ctx, "carla", "Carla", "hash")

	for _, m := range []struct {
		id    int64
		title string
	}{{1, "Stalker"}, {2, "Solaris"}, {3, "Lo specchio"}, {4, "Andrej Rublëv"}} {
		if _, err := database.ExecContext(ctx, `INSERT INTO movies (id, title) VALUES (?, ?)`, m.id, m.title); err != nil {
			t.Fatalf("insert movie: %v", err)
		}
	}

	pub := &recordingPublisher{}
	env := &testEnv{
		db:    database,
		pub:   pub,
		admin: admin,
		bob:   bob,
		carla: carla,
		clock: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(NewStore(database), gamification.NewEngine(database, pub), pub, 72*time.Hour)
	env.svc.now = func() time.Time { return env.clock }
	return env
}

func (env *testEnv) create(t *testing.T, ids ...int64) *Event {
	t.Helper()
	e, err := env.svc.Create(context.Background(), env.admin, CreateInput{Title: "Tarkovskij", MovieIDs: ids})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseVoting, PhaseViewing, true},
		{PhaseVoting, PhaseDiscussion, false},
		{PhaseVoting, PhaseClosed, false},
		{PhaseViewing, PhaseDiscussion, true},
		{PhaseViewing, PhaseClosed, true},
		{PhaseViewing, PhaseVoting, false},
		{PhaseDiscussion, PhaseClosed, true},
		{PhaseDiscussion, PhaseViewing, false},
		{PhaseClosed, PhaseVoting, false},
		{PhaseClosed, PhaseClosed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWinner(t *testing.T) {
	entry := func(pos int, id int64, votes int) TallyEntry {
		return TallyEntry{Candidate: Candidate{Position: pos, MovieID: id}, Count: votes}
	}
	tests := []struct {
		name  string
		tally []TallyEntry
		want  int64
	}{
		{"most votes", []TallyEntry{entry(1, 10, 1), entry(2, 20, 3), entry(3, 30, 2)}, 20},
		{"tie goes to lowest position", []TallyEntry{entry(1, 10, 1), entry(2, 20, 2), entry(3, 30, 2)}, 20},
		{"no votes picks first", []TallyEntry{entry(1, 10, 0), entry(2, 20, 0)}, 10},
	}
	for _, tt := range tests {
		w, err := Winner(tt.tally)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if w.MovieID != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, w.MovieID)
		}
	}
	if _, err := Winner(nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestCreateRules(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, env.admin, CreateInput{Title: "x", MovieIDs: []int64{1, 1}}); !errors.Is(err, ErrTooFewCandidates) {
		t.Errorf("expected ErrTooFewCandidates for duplicate ids, got %v", err)
	}
	if _, err := env.svc.Create(ctx, env.admin, CreateInput{Title: "x", MovieIDs: []int64{1, 99}}); !errors.Is(err, ErrUnknownMovie) {
		t.Errorf("expected ErrUnknownMovie, got %v", err)
	}
	if _, err := env.svc.Create(ctx, env.admin, CreateInput{Title: "x", MovieIDs: []int64{1, 2}, Deadline: env.clock.Add(-time.Hour)}); !errors.Is(err, ErrPastDeadline) {
		t.Errorf("expected ErrPastDeadline, got %v", err)
	}

	e := env.create(t, 1, 2, 1, 3)
	if e.Phase != PhaseVoting {
		t.Errorf("expected voting, got %s", e.Phase)
	}
	if len(e.Candidates) != 3 || e.Candidates[2].MovieID != 3 || e.Candidates[2].Position != 3 {
		t.Errorf("unexpected candidates %+v", e.Candidates)
	}
	if !e.VotingDeadline.Equal(env.clock.Add(72 * time.Hour)) {
		t.Errorf("expected default deadline, got %v", e.VotingDeadline)
	}

	if _, err := env.svc.Create(ctx, env.admin, CreateInput{Title: "y", MovieIDs: []int64{1, 2}}); !errors.Is(err, ErrActiveEvent) {
		t.Errorf("expected ErrActiveEvent, got %v", err)
	}
	if !env.pub.has("events/created") {
		t.Error("expected events/created change")
	}
}

func TestVoteMovesAndTally(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2, 3)

	if _, err := env.svc.Vote(ctx, e.ID, env.bob.ID, 1); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := env.svc.Vote(ctx, e.ID, env.carla.ID, 2); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	tally, err := env.svc.Vote(ctx, e.ID, env.bob.ID, 2)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}

	if tally[0].Count != 0 || tally[1].Count != 2 {
		t.Errorf("expected bob's vote to move, got %+v", tally)
	}
	if _, err := env.svc.Vote(ctx, e.ID, env.bob.ID, 4); !errors.Is(err, ErrNotCandidate) {
		t.Errorf("expected ErrNotCandidate, got %v", err)
	}

	tally, err = env.svc.Unvote(ctx, e.ID, env.carla.ID)
	if err != nil {
		t.Fatalf("Unvote: %v", err)
	}
	if tally[1].Count != 1 || tally[1].Voters[0] != env.bob.ID {
		t.Errorf("expected only bob on Solaris, got %+v", tally[1])
	}

	bob, _ := users.NewStore(env.db).GetByID(ctx, env.bob.ID)
	if bob.XP == 0 {
		t.Error("expected voting to award first_vote xp")
	}
}

func TestVoteAfterDeadline(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)

	env.clock = e.VotingDeadline
	if _, err := env.svc.Vote(ctx, e.ID, env.bob.ID, 1); !errors.Is(err, ErrVotingClosed) {
		t.Errorf("expected ErrVotingClosed at the deadline, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2, 3)

	env.svc.Vote(ctx, e.ID, env.bob.ID, 3)
	env.svc.Vote(ctx, e.ID, env.carla.ID, 2)
	env.svc.Vote(ctx, e.ID, env.admin.ID, 3)

	if _, err := env.svc.Advance(ctx, e.ID, PhaseDiscussion); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected voting -> discussion to be refused, got %v", err)
	}
	if err := env.svc.Attend(ctx, e.ID, env.bob.ID); !errors.Is(err, ErrNotWatchable) {
		t.Errorf("expected ErrNotWatchable during voting, got %v", err)
	}

	viewing, err := env.svc.Advance(ctx, e.ID, PhaseViewing)
	if err != nil {
		t.Fatalf("StartViewing: %v", err)
	}
	if viewing.Phase != PhaseViewing || viewing.WinnerMovieID == nil || *viewing.WinnerMovieID != 3 {
		t.Fatalf("expected viewing with winner 3, got %+v", viewing)
	}
	if viewing.ViewingAt == nil {
		t.Error("expected viewing timestamp")
	}

	if err := env.svc.Attend(ctx, e.ID, env.bob.ID); err != nil {
		t.Fatalf("Attend: %v", err)
	}
	if err := env.svc.Attend(ctx, e.ID, env.bob.ID); err != nil {
		t.Fatalf("Attend twice: %v", err)
	}
	attendees, _ := env.svc.Store().Attendees(ctx, e.ID)
	if len(attendees) != 1 {
		t.Errorf("expected 1 attendee, got %d", len(attendees))
	}

	if _, err := env.svc.Vote(ctx, e.ID, env.bob.ID, 1); !errors.Is(err, ErrNotVoting) {
		t.Errorf("expected ErrNotVoting after voting, got %v", err)
	}

	disc, err := env.svc.Advance(ctx, e.ID, PhaseDiscussion)
	if err != nil {
		t.Fatalf("StartDiscussion: %v", err)
	}
	if !env.pub.has("chat:" + disc.Room() + "/opened") {
		t.Error("expected discussion room to open")
	}

	closed, err := env.svc.Advance(ctx, e.ID, PhaseClosed)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Phase != PhaseClosed || closed.ClosedAt == nil {
		t.Errorf("expected closed event, got %+v", closed)
	}
	if _, err := env.svc.Advance(ctx, e.ID, PhaseViewing); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected no way back from closed, got %v", err)
	}

	// A closed event frees the slot for the next one.
	env.create(t, 1, 4)
}

func TestTransitionCompareAndSet(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)

	store := env.svc.Store()
	if err := store.Transition(ctx, e.ID, PhaseVoting, PhaseViewing, nil, env.clock); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	// The second caller still believes the event is voting.
	if err := store.Transition(ctx, e.ID, PhaseVoting, PhaseViewing, nil, env.clock); !errors.Is(err, ErrPhaseConflict) {
		t.Errorf("expected ErrPhaseConflict, got %v", err)
	}
	if err := store.Transition(ctx, "missing", PhaseVoting, PhaseViewing, nil, env.clock); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseExpiredVoting(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)
	env.svc.Vote(ctx, e.ID, env.bob.ID, 2)

	n, err := env.svc.CloseExpiredVoting(ctx, e.VotingDeadline.Add(-time.Second))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing before the deadline, got %d, %v", n, err)
	}

	n, err = env.svc.CloseExpiredVoting(ctx, e.VotingDeadline)
	if err != nil {
		t.Fatalf("CloseExpiredVoting: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event moved, got %d", n)
	}
	got, _ := env.svc.Get(ctx, e.ID)
	if got.Phase != PhaseViewing || *got.WinnerMovieID != 2 {
		t.Errorf("expected viewing with winner 2, got %s %v", got.Phase, got.WinnerMovieID)
	}

	n, err = env.svc.CloseExpiredVoting(ctx, e.VotingDeadline.Add(time.Hour))
	if err != nil || n != 0 {
		t.Errorf("expected a second run to be a no-op, got %d, %v", n, err)
	}
}

func TestPollerRunsUntilCancelled(t *testing.T) {
	env := setupTest(t)
	e := env.create(t, 1, 2)
	env.clock = e.VotingDeadline.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPoller(env.svc, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.pub.has("events/viewing") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	got, _ := env.svc.Get(context.Background(), e.ID)
	if got.Phase != PhaseViewing {
		t.Errorf("expected poller to close voting, got %s", got.Phase)
	}
}

func TestAddCandidateRequiresUnlock(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)

	if _, err := env.svc.AddCandidate(ctx, env.bob, e.ID, 3); !errors.Is(err, gamification.ErrLocked) {
		t.Fatalf("expected ErrLocked for level 1 member, got %v", err)
	}

	bob := *env.bob
	bob.Level = 3
	c, err := env.svc.AddCandidate(ctx, &bob, e.ID, 3)
	if err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}
	if c.Position != 3 || c.ProposedBy != bob.ID {
		t.Errorf("unexpected candidate %+v", c)
	}
	if _, err := env.svc.AddCandidate(ctx, &bob, e.ID, 3); !errors.Is(err, ErrDuplicateCandidate) {
		t.Errorf("expected ErrDuplicateCandidate, got %v", err)
	}
}

func TestAdvanceRoute(t *testing.T) {
	env := setupTest(t)
	e := env.create(t, 1, 2)

	as := func(u *users.User) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(users.WithUser(r.Context(), u)))
			})
		}
	}

	member := chi.NewRouter()
	member.Use(as(env.bob))
	RegisterRoutes(member, env.svc)

	rec := httptest.NewRecorder()
	member.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/"+e.ID+"/advance", strings.NewReader(`{"to":"viewing"}`)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for member, got %d", rec.Code)
	}

	admin := chi.NewRouter()
	admin.Use(as(env.admin))
	RegisterRoutes(admin, env.svc)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/"+e.ID+"/advance", strings.NewReader(`{"to":"closed"}`)))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for voting -> closed, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/"+e.ID+"/advance", strings.NewReader(`{"to":"viewing"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got Event
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Phase != PhaseViewing {
		t.Errorf("expected viewing, got %s", got.Phase)
	}

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/current", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected current event, got %d", rec.Code)
	}
}

func (env *testEnv) voters(t *testing.T, n int) []*users.User {
	t.Helper()
	us := users.NewStore(env.db)
	out := make([]*users.User, n)
	for i := range out {
		u, err := us.Create(context.Background(), fmt.Sprintf("voter%02d", i), "Voter", "hash")
		if err != nil {
			t.Fatalf("Create voter: %v", err)
		}
		out[i] = u
	}
	return out
}

func TestConcurrentVotesOnFileDatabase(t *testing.T) {
	env := setupFileTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)
	voters := env.voters(t, 20)

	var wg sync.WaitGroup
	errs := make(chan error, len(voters))
	for i, u := range voters {
		wg.Add(1)
		go func(u *users.User, movieID int64) {
			defer wg.Done()
			if _, err := env.svc.Vote(ctx, e.ID, u.ID, movieID); err != nil {
				errs <- err
			}
		}(u, int64(1+i%2))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Vote: %v", err)
	}

	tally, err := env.svc.Tally(ctx, e.ID)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if got := tally[0].Count + tally[1].Count; got != len(voters) {
		t.Errorf("expected %d votes, got %d", len(voters), got)
	}

	var awarded int
	if err := env.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_missions WHERE mission_id = 'first_vote'`).Scan(&awarded); err != nil {
		t.Fatalf("count missions: %v", err)
	}
	if awarded != len(voters) {
		t.Errorf("expected first_vote for %d voters, got %d", len(voters), awarded)
	}
}

func TestStartViewingCountsEveryAcceptedVote(t *testing.T) {
	env := setupFileTest(t)
	ctx := context.Background()
	e := env.create(t, 1, 2)
	voters := env.voters(t, 12)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := map[int64]int{}
	for i, u := range voters {
		wg.Add(1)
		// Later voters all back the second film, so a dropped vote changes the winner.
		movieID := int64(1)
		if i >= 5 {
			movieID = 2
		}
		go func(u *users.User, movieID int64) {
			defer wg.Done()
			if _, err := env.svc.Vote(ctx, e.ID, u.ID, movieID); err == nil {
				mu.Lock()
				accepted[movieID]++
				mu.Unlock()
			} else if !errors.Is(err, ErrNotVoting) {
				t.Errorf("Vote: %v", err)
			}
		}(u, movieID)
	}
	wg.Add(1)
	var closed *Event
	go func() {
		defer wg.Done()
		var err error
		if closed, err = env.svc.StartViewing(ctx, e.ID); err != nil {
			t.Errorf("StartViewing: %v", err)
		}
	}()
	wg.Wait()
	if closed == nil {
		t.FailNow()
	}

	want := int64(1)
	if accepted[2] > accepted[1] {
		want = 2
	}
	if closed.WinnerMovieID == nil || *closed.WinnerMovieID != want {
		t.Errorf("accepted votes %v: expected winner %d, got %v", accepted, want, closed.WinnerMovieID)
	}

	tally, err := env.svc.Tally(ctx, e.ID)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally[0].Count != accepted[1] || tally[1].Count != accepted[2] {
		t.Errorf("stored votes %d/%d differ from accepted %v", tally[0].Count, tally[1].Count, accepted)
	}
}
