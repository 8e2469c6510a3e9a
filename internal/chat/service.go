package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// EventLookup resolves the event behind an "event:<id>" room.
type EventLookup interface {
	Get(ctx context.Context, id string) (*events.Event, error)
}

// Service posts messages and triggers the moderator.
type Service struct {
	store     *Store
	events    EventLookup
	limiter   *limiter
	moderator *Moderator
	engine    *gamification.Engine
	pub       realtime.Publisher

	wg  sync.WaitGroup
	now func() time.Time
}

// NewService creates a chat service. moderator and engine may be nil.
func NewService(store *Store, lookup EventLookup, cfg config.ChatConfig, moderator *Moderator, engine *gamification.Engine, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Service{
		store:     store,
		events:    lookup,
		limiter:   newLimiter(cfg.MessagesPerSecond, cfg.Burst),
		moderator: moderator,
		engine:    engine,
		pub:       pub,
		now:       time.Now,
	}
}

// checkRoom validates a room name. Event rooms can be read once the event
// reaches discussion and written only during discussion.
func (s *Service) checkRoom(ctx context.Context, room string, write bool) error {
	if room == GeneralRoom {
		return nil
	}
	id, ok := EventRoomID(room)
	if !ok || s.events == nil {
		return ErrInvalidRoom
	}
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrInvalidRoom
	}
	switch e.Phase {
	case events.PhaseDiscussion:
		return nil
	case events.PhaseClosed:
		if write {
			return ErrRoomReadOnly
		}
		return nil
	default:
		return ErrRoomReadOnly
	}
}

// CanFollow reports whether a realtime topic may be streamed. Chat room
// topics follow the same read rules as History; other topics are open.
func (s *Service) CanFollow(ctx context.Context, topic string) bool {
	room, ok := strings.CutPrefix(topic, "chat:")
	if !ok {
		return true
	}
	return s.checkRoom(ctx, room, false) == nil
}

// Post stores and broadcasts a message from u. A message that mentions
// the moderator gets an asynchronous AI reply in the same room.
func (s *Service) Post(ctx context.Context, u *users.User, room, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxLength {
		return nil, ErrTooLong
	}
	if err := s.checkRoom(ctx, room, true); err != nil {
		return nil, err
	}
	if !s.limiter.allow(u.ID, s.now()) {
		return nil, ErrRateLimited
	}

	m, err := s.store.Insert(ctx, Message{Room: room, UserID: u.ID, Author: u.Name(), Content: content})
	if err != nil {
		return nil, err
	}
	s.pub.Publish(Topic(room), "message", m)

	if s.engine != nil {
		s.engine.Track(ctx, u.ID)
	}
	if s.moderator != nil && Mentioned(content) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.moderate(context.WithoutCancel(ctx), room)
		}()
	}
	return m, nil
}

func (s *Service) moderate(ctx context.Context, room string) {
	log := logging.With().Str("component", "moderator").Str("room", room).Logger()

	history, err := s.store.History(ctx, room, time.Time{}, contextMessages)
	if err != nil {
		log.Error().Err(err).Msg("loading history failed")
		return
	}
	reply, err := s.moderator.Reply(ctx, history)
	if err != nil {
		log.Error().Err(err).Msg("moderator reply failed")
		return
	}

	m, err := s.store.Insert(ctx, Message{Room: room, UserID: users.ModeratorID, Author: "Moderatore", Content: reply})
	if err != nil {
		log.Error().Err(err).Msg("saving moderator reply failed")
		return
	}
	s.pub.Publish(Topic(room), "message", m)
}

// History returns a room's messages.
func (s *Service) History(ctx context.Context, room string, before time.Time, limit int) ([]Message, error) {
	if err := s.checkRoom(ctx, room, false); err != nil {
		return nil, err
	}
	return s.store.History(ctx, room, before, limit)
}

// Wait blocks until pending moderator replies are done.
func (s *Service) Wait() { s.wg.Wait() }
