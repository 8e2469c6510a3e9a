package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// Topic is the realtime topic every event change is published on.
const Topic = "events"

// Service runs the event state machine on top of the store.
type Service struct {
	store        *Store
	engine       *gamification.Engine
	pub          realtime.Publisher
	votingWindow time.Duration
	now          func() time.Time
}

// NewService creates an event service. engine may be nil.
func NewService(store *Store, engine *gamification.Engine, pub realtime.Publisher, votingWindow time.Duration) *Service {
	if pub == nil {
		pub = realtime.Discard
	}
	if votingWindow <= 0 {
		votingWindow = 72 * time.Hour
	}
	return &Service{store: store, engine: engine, pub: pub, votingWindow: votingWindow, now: time.Now}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// CreateInput describes a new event.
type CreateInput struct {
	Title    string
	Theme    string
	Deadline time.Time
	MovieIDs []int64
}

// Create opens a new event in the voting phase. Duplicate film IDs are
// dropped; at least two distinct candidates must remain.
func (s *Service) Create(ctx context.Context, creator *users.User, in CreateInput) (*Event, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, id := range in.MovieIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return nil, ErrTooFewCandidates
	}

	deadline := in.Deadline
	if deadline.IsZero() {
		deadline = s.now().Add(s.votingWindow)
	}
	if !deadline.After(s.now()) {
		return nil, ErrPastDeadline
	}

	e, err := s.store.Create(ctx, Event{
		Title:          strings.TrimSpace(in.Title),
		Theme:          strings.TrimSpace(in.Theme),
		VotingDeadline: deadline,
		CreatedBy:      creator.ID,
	}, ids)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("event", e.ID).Str("title", e.Title).Time("deadline", e.VotingDeadline).Msg("event created")
	s.pub.Publish(Topic, "created", e)
	return e, nil
}

// Get returns an event or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// AddCandidate lets a member propose a film during voting. Non-admins need
// the propose_candidate unlock.
func (s *Service) AddCandidate(ctx context.Context, u *users.User, eventID string, movieID int64) (*Candidate, error) {
	if err := gamification.CheckUnlock(u, gamification.FeatureProposeCandidate); err != nil {
		return nil, err
	}
	c, err := s.store.AddCandidate(ctx, eventID, movieID, u.ID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(Topic, "candidate_added", map[string]interface{}{"event_id": eventID, "candidate": c})
	s.track(ctx, u.ID)
	return c, nil
}

// Vote casts or moves userID's single vote for the event.
func (s *Service) Vote(ctx context.Context, eventID, userID string, movieID int64) ([]TallyEntry, error) {
	if err := s.store.SetVote(ctx, eventID, userID, movieID, s.now()); err != nil {
		return nil, err
	}
	t, err := s.publishTally(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.track(ctx, userID)
	return t, nil
}

// Unvote withdraws userID's vote.
func (s *Service) Unvote(ctx context.Context, eventID, userID string) ([]TallyEntry, error) {
	if err := s.store.DeleteVote(ctx, eventID, userID, s.now()); err != nil {
		return nil, err
	}
	return s.publishTally(ctx, eventID)
}

func (s *Service) publishTally(ctx context.Context, eventID string) ([]TallyEntry, error) {
	t, err := s.store.Tally(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(Topic, "tally", map[string]interface{}{"event_id": eventID, "tally": t})
	return t, nil
}

// Tally returns the per-candidate votes of an event.
func (s *Service) Tally(ctx context.Context, eventID string) ([]TallyEntry, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.Tally(ctx, eventID)
}

// Winner picks the candidate with the most voters; ties go to the lowest
// position. With no votes at all the first candidate wins.
func Winner(tally []TallyEntry) (*TallyEntry, error) {
	if len(tally) == 0 {
		return nil, ErrNoCandidates
	}
	best := 0
	for i := 1; i < len(tally); i++ {
		t, b := tally[i], tally[best]
		if t.Count > b.Count || (t.Count == b.Count && t.Position < b.Position) {
			best = i
		}
	}
	w := tally[best]
	return &w, nil
}

// Advance moves the event to the target phase.
func (s *Service) Advance(ctx context.Context, eventID string, to Phase) (*Event, error) {
	switch to {
	case PhaseViewing:
		return s.StartViewing(ctx, eventID)
	case PhaseDiscussion:
		return s.StartDiscussion(ctx, eventID)
	case PhaseClosed:
		return s.Close(ctx, eventID)
	default:
		return nil, ErrInvalidTransition
	}
}

// StartViewing closes voting, fixes the winner and moves to viewing.
func (s *Service) StartViewing(ctx context.Context, eventID string) (*Event, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !e.Phase.CanTransitionTo(PhaseViewing) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Phase, PhaseViewing)
	}

	w, err := s.store.CloseVoting(ctx, eventID, s.now())
	if err != nil {
		return nil, err
	}
	logging.Info().Str("event", eventID).Int64("winner", w.MovieID).Int("votes", w.Count).Msg("voting closed")

	e, err = s.transitioned(ctx, eventID, "viewing")
	if err != nil {
		return nil, err
	}
	if w.ProposedBy != "" {
		s.track(ctx, w.ProposedBy)
	}
	return e, nil
}

// StartDiscussion opens the event's discussion room.
func (s *Service) StartDiscussion(ctx context.Context, eventID string) (*Event, error) {
	e, err := s.move(ctx, eventID, PhaseDiscussion)
	if err != nil {
		return nil, err
	}
	s.pub.Publish("chat:"+e.Room(), "opened", map[string]string{"room": e.Room(), "event_id": e.ID})
	return e, nil
}

// Close ends the event from viewing or discussion.
func (s *Service) Close(ctx context.Context, eventID string) (*Event, error) {
	return s.move(ctx, eventID, PhaseClosed)
}

func (s *Service) move(ctx context.Context, eventID string, to Phase) (*Event, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !e.Phase.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Phase, to)
	}
	if err := s.store.Transition(ctx, eventID, e.Phase, to, nil, s.now()); err != nil {
		return nil, err
	}
	logging.Info().Str("event", eventID).Str("from", string(e.Phase)).Str("to", string(to)).Msg("event phase changed")
	return s.transitioned(ctx, eventID, string(to))
}

func (s *Service) transitioned(ctx context.Context, eventID, kind string) (*Event, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(Topic, kind, e)
	return e, nil
}

// CloseExpiredVoting moves every voting event whose deadline is at or
// before now into viewing. Events another caller already moved are
// skipped; other failures are logged, leave that event unchanged and are
// returned joined.
func (s *Service) CloseExpiredVoting(ctx context.Context, now time.Time) (int, error) {
	voting, err := s.store.VotingEvents(ctx)
	if err != nil {
		return 0, err
	}

	moved := 0
	var errs []error
	for _, e := range voting {
		if now.Before(e.VotingDeadline) {
			continue
		}
		_, err := s.StartViewing(ctx, e.ID)
		switch {
		case err == nil:
			moved++
		case errors.Is(err, ErrPhaseConflict), errors.Is(err, ErrInvalidTransition):
			logging.Debug().Str("event", e.ID).Msg("event already left voting")
		default:
			logging.Error().Err(err).Str("event", e.ID).Msg("closing expired voting failed")
			errs = append(errs, fmt.Errorf("event %s: %w", e.ID, err))
		}
	}
	return moved, errors.Join(errs...)
}

// Attend records that userID watched the event's film.
func (s *Service) Attend(ctx context.Context, eventID, userID string) error {
	if err := s.store.Attend(ctx, eventID, userID); err != nil {
		return err
	}
	s.pub.Publish(Topic, "attended", map[string]string{"event_id": eventID, "user_id": userID})
	s.track(ctx, userID)
	return nil
}

func (s *Service) track(ctx context.Context, userID string) {
	if s.engine != nil {
		s.engine.Track(ctx, userID)
	}
}
