package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/cineforum/internal/db"
)

// Store manages persistence of events, candidates, votes and attendance.
type Store struct {
	db *db.DB
}

// NewStore creates a new event store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const eventColumns = `id, title, theme, phase, voting_deadline, winner_movie_id, created_by, created_at, updated_at, viewing_at, discussion_at, closed_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var winner sql.NullInt64
	var viewing, discussion, closed sql.NullTime
	err := row.Scan(&e.ID, &e.Title, &e.Theme, &e.Phase, &e.VotingDeadline, &winner,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &viewing, &discussion, &closed)
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		e.WinnerMovieID = &winner.Int64
	}
	e.ViewingAt = nullTime(viewing)
	e.DiscussionAt = nullTime(discussion)
	e.ClosedAt = nullTime(closed)
	return &e, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Create inserts a new voting-phase event with its candidates. Fails with
// ErrActiveEvent while another event is not closed.
func (s *Store) Create(ctx context.Context, e Event, movieIDs []int64) (*Event, error) {
	now := time.Now().UTC()
	e.ID = uuid.New().String()
	e.Phase = PhaseVoting
	e.CreatedAt = now
	e.UpdatedAt = now
	e.VotingDeadline = e.VotingDeadline.UTC()

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var open int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE phase != 'closed'`).Scan(&open); err != nil {
			return fmt.Errorf("checking open events: %w", err)
		}
		if open > 0 {
			return ErrActiveEvent
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, title, theme, phase, voting_deadline, created_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.Theme, e.Phase, e.VotingDeadline, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}

		for i, id := range movieIDs {
			if err := insertCandidate(ctx, tx, e.ID, i+1, id, e.CreatedBy, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, e.ID)
}

func insertCandidate(ctx context.Context, tx *sql.Tx, eventID string, position int, movieID int64, proposedBy string, at time.Time) error {
	var known int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies WHERE id = ?`, movieID).Scan(&known); err != nil {
		return fmt.Errorf("checking movie: %w", err)
	}
	if known == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownMovie, movieID)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO event_candidates (event_id, position, movie_id, proposed_by, added_at) VALUES (?, ?, ?, ?, ?)`,
		eventID, position, movieID, proposedBy, at,
	)
	if err != nil {
		return fmt.Errorf("inserting candidate: %w", err)
	}
	return nil
}

// Get retrieves an event with its candidates. Returns nil, nil when missing.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, q queryer, id string) (*Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}
	e.Candidates, err = candidates(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func candidates(ctx context.Context, q queryer, eventID string) ([]Candidate, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT c.position, c.movie_id, m.title, m.year, m.poster_url, c.proposed_by
		 FROM event_candidates c JOIN movies m ON m.id = c.movie_id
		 WHERE c.event_id = ? ORDER BY c.position`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Position, &c.MovieID, &c.Title, &c.Year, &c.PosterURL, &c.ProposedBy); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns events, newest first, optionally filtered by phase.
func (s *Store) List(ctx context.Context, phase Phase, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if phase != "" {
		query += ` WHERE phase = ?`
		args = append(args, phase)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Candidates, err = candidates(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Current returns the event that is not closed yet, or nil.
func (s *Store) Current(ctx context.Context) (*Event, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM events WHERE phase != 'closed' ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting current event: %w", err)
	}
	return s.Get(ctx, id)
}

// AddCandidate appends a film to a voting-phase event.
func (s *Store) AddCandidate(ctx context.Context, eventID string, movieID int64, proposedBy string) (*Candidate, error) {
	var added *Candidate
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var phase Phase
		err := tx.QueryRowContext(ctx, `SELECT phase FROM events WHERE id = ?`, eventID).Scan(&phase)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading phase: %w", err)
		}
		if phase != PhaseVoting {
			return ErrNotVoting
		}

		var dup, maxPos int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(movie_id = ?), 0), COALESCE(MAX(position), 0) FROM event_candidates WHERE event_id = ?`,
			movieID, eventID,
		).Scan(&dup, &maxPos)
		if err != nil {
			return fmt.Errorf("reading candidates: %w", err)
		}
		if dup > 0 {
			return ErrDuplicateCandidate
		}

		if err := insertCandidate(ctx, tx, eventID, maxPos+1, movieID, proposedBy, time.Now().UTC()); err != nil {
			return err
		}

		list, err := candidates(ctx, tx, eventID)
		if err != nil {
			return err
		}
		added = &list[len(list)-1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// SetVote records or moves userID's vote. The event must be voting and
// before its deadline at now.
func (s *Store) SetVote(ctx context.Context, eventID, userID string, movieID int64, now time.Time) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := checkVotingOpen(ctx, tx, eventID, now); err != nil {
			return err
		}

		var isCandidate int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM event_candidates WHERE event_id = ? AND movie_id = ?`, eventID, movieID,
		).Scan(&isCandidate)
		if err != nil {
			return fmt.Errorf("checking candidate: %w", err)
		}
		if isCandidate == 0 {
			return ErrNotCandidate
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_votes (event_id, user_id, movie_id, voted_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(event_id, user_id) DO UPDATE SET movie_id = excluded.movie_id, voted_at = excluded.voted_at`,
			eventID, userID, movieID, now.UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving vote: %w", err)
		}
		return nil
	})
}

// DeleteVote withdraws userID's vote while voting is open.
func (s *Store) DeleteVote(ctx context.Context, eventID, userID string, now time.Time) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := checkVotingOpen(ctx, tx, eventID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_votes WHERE event_id = ? AND user_id = ?`, eventID, userID); err != nil {
			return fmt.Errorf("deleting vote: %w", err)
		}
		return nil
	})
}

func checkVotingOpen(ctx context.Context, tx *sql.Tx, eventID string, now time.Time) error {
	var phase Phase
	var deadline time.Time
	err := tx.QueryRowContext(ctx, `SELECT phase, voting_deadline FROM events WHERE id = ?`, eventID).Scan(&phase, &deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading event: %w", err)
	}
	if phase != PhaseVoting {
		return ErrNotVoting
	}
	if !now.Before(deadline) {
		return ErrVotingClosed
	}
	return nil
}

// Tally returns every candidate with its voters, in candidate order.
func (s *Store) Tally(ctx context.Context, eventID string) ([]TallyEntry, error) {
	return tally(ctx, s.db, eventID)
}

func tally(ctx context.Context, q queryer, eventID string) ([]TallyEntry, error) {
	cands, err := candidates(ctx, q, eventID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT movie_id, user_id FROM event_votes WHERE event_id = ? ORDER BY voted_at, user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}
	defer rows.Close()

	voters := make(map[int64][]string)
	for rows.Next() {
		var movieID int64
		var userID string
		if err := rows.Scan(&movieID, &userID); err != nil {
			return nil, fmt.Errorf("scanning vote: %w", err)
		}
		voters[movieID] = append(voters[movieID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TallyEntry, 0, len(cands))
	for _, c := range cands {
		v := voters[c.MovieID]
		if v == nil {
			v = []string{}
		}
		out = append(out, TallyEntry{Candidate: c, Voters: v, Count: len(v)})
	}
	return out, nil
}

// UserVote returns the film userID voted for, or 0.
func (s *Store) UserVote(ctx context.Context, eventID, userID string) (int64, error) {
	var movieID int64
	err := s.db.QueryRowContext(ctx, `SELECT movie_id FROM event_votes WHERE event_id = ? AND user_id = ?`, eventID, userID).Scan(&movieID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting vote: %w", err)
	}
	return movieID, nil
}

// phaseColumn names the timestamp column set when entering a phase.
var phaseColumn = map[Phase]string{
	PhaseViewing:    "viewing_at",
	PhaseDiscussion: "discussion_at",
	PhaseClosed:     "closed_at",
}

// Transition moves an event from one phase to another only if it is still
// in from. It returns ErrPhaseConflict when the phase changed underneath.
func (s *Store) Transition(ctx context.Context, id string, from, to Phase, winner *int64, at time.Time) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return transition(ctx, tx, id, from, to, winner, at)
	})
}

// CloseVoting tallies the votes and moves the event from voting to viewing
// in one transaction, so no vote can land between the count and the switch.
// The winning tally entry is returned.
func (s *Store) CloseVoting(ctx context.Context, id string, at time.Time) (*TallyEntry, error) {
	var w *TallyEntry
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := tally(ctx, tx, id)
		if err != nil {
			return err
		}
		w, err = Winner(t)
		if err != nil {
			return err
		}
		return transition(ctx, tx, id, PhaseVoting, PhaseViewing, &w.MovieID, at)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func transition(ctx context.Context, tx *sql.Tx, id string, from, to Phase, winner *int64, at time.Time) error {
	col, ok := phaseColumn[to]
	if !ok {
		return ErrInvalidTransition
	}
	at = at.UTC()

	query := `UPDATE events SET phase = ?, updated_at = ?, ` + col + ` = ?`
	args := []any{to, at, at}
	if winner != nil {
		query += `, winner_movie_id = ?`
		args = append(args, *winner)
	}
	query += ` WHERE id = ? AND phase = ?`
	args = append(args, id, from)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating phase: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking event: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrPhaseConflict
}

// VotingEvents returns every event still in the voting phase.
func (s *Store) VotingEvents(ctx context.Context) ([]Event, error) {
	return s.List(ctx, PhaseVoting, 0)
}

// Attend marks userID as having watched the event's film.
func (s *Store) Attend(ctx context.Context, eventID, userID string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var phase Phase
		err := tx.QueryRowContext(ctx, `SELECT phase FROM events WHERE id = ?`, eventID).Scan(&phase)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading phase: %w", err)
		}
		if phase != PhaseViewing && phase != PhaseDiscussion {
			return ErrNotWatchable
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_attendance (event_id, user_id, attended_at) VALUES (?, ?, ?)`,
			eventID, userID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving attendance: %w", err)
		}
		return nil
	})
}

// Attendees returns the IDs of users who watched the event's film.
func (s *Store) Attendees(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM event_attendance WHERE event_id = ? ORDER BY attended_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing attendees: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
