package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/users"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic, kind string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

type fakeEvents map[string]*events.Event

func (f fakeEvents) Get(_ context.Context, id string) (*events.Event, error) {
	return f[id], nil
}

func setupTest(t *testing.T, mod *Moderator, cfg config.ChatConfig) (*Service, *users.User, *recordingPublisher) {
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
	lookup := fakeEvents{
		"e1": {ID: "e1", Phase: events.PhaseDiscussion},
		"e2": {ID: "e2", Phase: events.PhaseVoting},
		"e3": {ID: "e3", Phase: events.PhaseClosed},
	}
	pub := &recordingPublisher{}
	return NewService(NewStore(database), lookup, cfg, mod, nil, pub), u, pub
}

var roomy = config.ChatConfig{MessagesPerSecond: 100, Burst: 100}

func TestMentioned(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"@moderator chi ha diretto Stalker?", true},
		{"@mod, aiuto", true},
		{"  @MOD", true},
		{"@modern times is great", false},
		{"ciao @moderator", false},
		{"nessuna menzione", false},
	}
	for _, tt := range tests {
		if got := Mentioned(tt.text); got != tt.want {
			t.Errorf("Mentioned(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPostAndHistory(t *testing.T) {
	svc, u, pub := setupTest(t, nil, roomy)
	ctx := context.Background()

	for _, text := range []string{"primo", "secondo", "terzo"} {
		if _, err := svc.Post(ctx, u, GeneralRoom, text); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	msgs, err := svc.History(ctx, GeneralRoom, time.Time{}, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "secondo" || msgs[1].Content != "terzo" {
		t.Errorf("expected last two messages in order, got %+v", msgs)
	}
	if msgs[1].Author != "Ada" {
		t.Errorf("expected author Ada, got %q", msgs[1].Author)
	}
	if len(pub.topics) != 3 || pub.topics[0] != "chat:general" {
		t.Errorf("expected three chat:general changes, got %v", pub.topics)
	}
}

func TestPostValidation(t *testing.T) {
	svc, u, _ := setupTest(t, nil, roomy)
	ctx := context.Background()

	if _, err := svc.Post(ctx, u, GeneralRoom, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Post(ctx, u, GeneralRoom, strings.Repeat("è", MaxLength+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
	if _, err := svc.Post(ctx, u, GeneralRoom, strings.Repeat("è", MaxLength)); err != nil {
		t.Errorf("expected %d characters to be accepted, got %v", MaxLength, err)
	}
	if _, err := svc.Post(ctx, u, "random", "x"); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("expected ErrInvalidRoom, got %v", err)
	}
}

func TestEventRooms(t *testing.T) {
	svc, u, _ := setupTest(t, nil, roomy)
	ctx := context.Background()

	if _, err := svc.Post(ctx, u, "event:e1", "che finale!"); err != nil {
		t.Errorf("expected discussion room to accept posts, got %v", err)
	}
	if _, err := svc.Post(ctx, u, "event:e2", "x"); !errors.Is(err, ErrRoomReadOnly) {
		t.Errorf("expected voting event room to be closed, got %v", err)
	}
	if _, err := svc.Post(ctx, u, "event:e3", "x"); !errors.Is(err, ErrRoomReadOnly) {
		t.Errorf("expected closed event room to be read-only, got %v", err)
	}
	if _, err := svc.History(ctx, "event:e3", time.Time{}, 10); err != nil {
		t.Errorf("expected closed event room to be readable, got %v", err)
	}
	if _, err := svc.Post(ctx, u, "event:nope", "x"); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("expected ErrInvalidRoom for unknown event, got %v", err)
	}
}

func TestCanFollow(t *testing.T) {
	svc, _, _ := setupTest(t, nil, roomy)
	ctx := context.Background()

	tests := []struct {
		topic string
		want  bool
	}{
		{"events", true},
		{"users", true},
		{Topic(GeneralRoom), true},
		{Topic("event:e1"), true},
		{Topic("event:e2"), false},
		{Topic("event:e3"), true},
		{Topic("event:nope"), false},
		{Topic("lobby"), false},
	}
	for _, tt := range tests {
		if got := svc.CanFollow(ctx, tt.topic); got != tt.want {
			t.Errorf("CanFollow(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	svc, u, _ := setupTest(t, nil, config.ChatConfig{MessagesPerSecond: 1, Burst: 2})
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	for i := 0; i < 2; i++ {
		if _, err := svc.Post(ctx, u, GeneralRoom, "spam"); err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
	}
	if _, err := svc.Post(ctx, u, GeneralRoom, "spam"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	fixed = fixed.Add(time.Second)
	if _, err := svc.Post(ctx, u, GeneralRoom, "di nuovo"); err != nil {
		t.Errorf("expected a token after one second, got %v", err)
	}
}

func TestModeratorReplies(t *testing.T) {
	mock := llm.NewMockProvider("mock", "Stalker è di Andrej Tarkovskij.")
	svc, u, _ := setupTest(t, NewModerator(mock, "m"), roomy)
	ctx := context.Background()

	svc.Post(ctx, u, GeneralRoom, "ciao a tutti")
	if _, err := svc.Post(ctx, u, GeneralRoom, "@moderator chi ha diretto Stalker?"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	svc.Wait()

	msgs, _ := svc.History(ctx, GeneralRoom, time.Time{}, 10)
	if len(msgs) != 3 {
		t.Fatalf("expected moderator reply, got %d messages", len(msgs))
	}
	last := msgs[2]
	if last.UserID != users.ModeratorID || !strings.Contains(last.Content, "Tarkovskij") {
		t.Errorf("unexpected reply %+v", last)
	}

	req := mock.LastRequest()
	if req.Messages[0].Role != llm.RoleSystem {
		t.Error("expected a system prompt first")
	}
	if got := req.Messages[len(req.Messages)-1].Content; got != "Ada: @moderator chi ha diretto Stalker?" {
		t.Errorf("expected the mention as last turn, got %q", got)
	}
}

func TestModeratorFailurePostsNothing(t *testing.T) {
	mock := llm.NewMockProvider("mock")
	mock.Err = errors.New("upstream down")
	svc, u, _ := setupTest(t, NewModerator(mock, "m"), roomy)
	ctx := context.Background()

	svc.Post(ctx, u, GeneralRoom, "@mod ci sei?")
	svc.Wait()

	msgs, _ := svc.History(ctx, GeneralRoom, time.Time{}, 10)
	if len(msgs) != 1 {
		t.Errorf("expected no reply on failure, got %d messages", len(msgs))
	}
}

func TestRoutes(t *testing.T) {
	svc, u, _ := setupTest(t, nil, roomy)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(users.WithUser(req.Context(), u)))
		})
	})
	RegisterRoutes(r, svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/general/messages", strings.NewReader(`{"content":"buonasera"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/general/messages?limit=10", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "buonasera") {
		t.Errorf("expected history with message, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/event:e2/messages", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a room that is not open, got %d", rec.Code)
	}
}
