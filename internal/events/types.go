package events

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("event not found")
	ErrInvalidTransition  = errors.New("invalid phase transition")
	ErrPhaseConflict      = errors.New("event phase changed concurrently")
	ErrActiveEvent        = errors.New("another event is still open")
	ErrNotVoting          = errors.New("event is not in the voting phase")
	ErrVotingClosed       = errors.New("voting deadline has passed")
	ErrNotCandidate       = errors.New("film is not a candidate of this event")
	ErrDuplicateCandidate = errors.New("film is already a candidate")
	ErrTooFewCandidates   = errors.New("an event needs at least 2 distinct candidates")
	ErrNoCandidates       = errors.New("event has no candidates")
	ErrUnknownMovie       = errors.New("film is not in the library")
	ErrNotWatchable       = errors.New("event is not in the viewing or discussion phase")
	ErrPastDeadline       = errors.New("voting deadline must be in the future")
)

// Phase is the lifecycle stage of a cineforum event.
type Phase string

const (
	PhaseVoting     Phase = "voting"     // members vote among candidates
	PhaseViewing    Phase = "viewing"    // the winner is being watched
	PhaseDiscussion Phase = "discussion" // the event chat room is open
	PhaseClosed     Phase = "closed"
)

var transitions = map[Phase][]Phase{
	PhaseVoting:     {PhaseViewing},
	PhaseViewing:    {PhaseDiscussion, PhaseClosed},
	PhaseDiscussion: {PhaseClosed},
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseVoting, PhaseViewing, PhaseDiscussion, PhaseClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows p -> target.
// There is no way back.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, next := range transitions[p] {
		if next == target {
			return true
		}
	}
	return false
}

// Event is a cineforum event.
type Event struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Theme          string      `json:"theme,omitempty"`
	Phase          Phase       `json:"phase"`
	VotingDeadline time.Time   `json:"voting_deadline"`
	WinnerMovieID  *int64      `json:"winner_movie_id,omitempty"`
	CreatedBy      string      `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ViewingAt      *time.Time  `json:"viewing_at,omitempty"`
	DiscussionAt   *time.Time  `json:"discussion_at,omitempty"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
	Candidates     []Candidate `json:"candidates"`
}

// Room returns the chat room name of the event's discussion.
func (e *Event) Room() string { return "event:" + e.ID }

// Candidate is a film proposed for an event, in proposal order.
type Candidate struct {
	Position   int    `json:"position"`
	MovieID    int64  `json:"movie_id"`
	Title      string `json:"title"`
	Year       int    `json:"year,omitempty"`
	PosterURL  string `json:"poster_url,omitempty"`
	ProposedBy string `json:"proposed_by,omitempty"`
}

// TallyEntry is the vote count of one candidate.
type TallyEntry struct {
	Candidate
	Voters []string `json:"voters"`
	Count  int      `json:"count"`
}
