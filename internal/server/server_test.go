package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/cineforum/internal/chat"
	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/content"
	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/games"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/leaderboard"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/users"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	engine := gamification.NewEngine(database, hub)
	filmStore := movies.NewStore(database)
	eventSvc := events.NewService(events.NewStore(database), engine, hub, 72*time.Hour)
	chatSvc := chat.NewService(chat.NewStore(database), eventSvc, config.ChatConfig{MessagesPerSecond: 1, Burst: 5}, nil, engine, hub)
	t.Cleanup(chatSvc.Wait)

	return New(cfg, Services{
		DB:          database,
		Users:       users.NewService(users.NewStore(database)),
		Engine:      engine,
		Movies:      movies.NewService(filmStore, nil, engine, hub),
		Events:      eventSvc,
		Leaderboard: leaderboard.NewStore(database),
		Chat:        chatSvc,
		Games:       games.NewService(games.NewStore(database), filmStore, nil, "", engine),
		Content:     content.NewService(content.NewStore(database), filmStore, nil, "", hub),
		Hub:         hub,
	})
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", body.Status)
	}
	if body.Features["catalog"] || body.Features["ai"] || body.Features["similar"] {
		t.Errorf("expected optional features off, got %v", body.Features)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, Config{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestRegisterAndUseSession(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/register",
		strings.NewReader(`{"username":"ada","password":"correct horse"}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil || session.Token == "" {
		t.Fatalf("expected a session token, got %s", w.Body.String())
	}

	authed := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+session.Token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := authed("GET", "/api/me/progress", ""); w.Code != http.StatusOK {
		t.Errorf("progress: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := authed("POST", "/api/chat/general/messages", `{"content":"ciao a tutti"}`); w.Code != http.StatusCreated {
		t.Errorf("chat: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := authed("GET", "/api/leaderboard/xp", ""); w.Code != http.StatusOK {
		t.Errorf("leaderboard: expected 200, got %d", w.Code)
	}
	if w := authed("GET", "/api/events", ""); w.Code != http.StatusOK {
		t.Errorf("events: expected 200, got %d", w.Code)
	}
	if w := authed("POST", "/api/news", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("news without provider: expected 503, got %d", w.Code)
	}
	if w := authed("GET", "/api/movies/1/similar", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("similar without embedder: expected 503, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /api/me: expected 401, got %d", w.Code)
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := newTestServer(t, Config{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
