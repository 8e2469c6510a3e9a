package games

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/cineforum/internal/db"
)

// Store manages persistence of game rounds.
type Store struct {
	db *db.DB
}

// NewStore creates a new game store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// storedQuestions is the JSON document kept in trivia_rounds.questions.
type storedQuestions struct {
	Source    string     `json:"source"`
	Questions []Question `json:"questions"`
}

// SaveTrivia inserts a new unanswered trivia round.
func (s *Store) SaveTrivia(ctx context.Context, r *TriviaRound) error {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	r.Total = len(r.Questions)

	doc, err := json.Marshal(storedQuestions{Source: r.Source, Questions: r.Questions})
	if err != nil {
		return fmt.Errorf("encoding questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trivia_rounds (id, user_id, movie_id, difficulty, questions, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.MovieID, r.Difficulty, string(doc), r.Total, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting trivia round: %w", err)
	}
	return nil
}

// GetTrivia retrieves a trivia round. Returns nil, nil when missing.
func (s *Store) GetTrivia(ctx context.Context, id string) (*TriviaRound, error) {
	var r TriviaRound
	var questions, answers string
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, movie_id, difficulty, questions, answers, correct, total, created_at, completed_at
		 FROM trivia_rounds WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &r.MovieID, &r.Difficulty, &questions, &answers, &r.Correct, &r.Total, &r.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting trivia round: %w", err)
	}

	var doc storedQuestions
	if err := json.Unmarshal([]byte(questions), &doc); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	r.Source = doc.Source
	r.Questions = doc.Questions
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers: %w", err)
	}
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return &r, nil
}

// CompleteTrivia records the answers once. A second call fails with
// ErrAlreadyAnswered.
func (s *Store) CompleteTrivia(ctx context.Context, id string, answers []int, correct int) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE trivia_rounds SET answers = ?, correct = ?, completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		string(data), correct, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("completing trivia round: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyAnswered
	}
	return nil
}

// SaveTimeline inserts a new timeline round with its films in shown order.
func (s *Store) SaveTimeline(ctx context.Context, r *TimelineRound) error {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	r.Total = len(r.Films)

	ids := make([]int64, len(r.Films))
	for i, f := range r.Films {
		ids[i] = f.MovieID
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding films: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timeline_rounds (id, user_id, movie_ids, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(data), r.Total, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting timeline round: %w", err)
	}
	return nil
}

// GetTimeline retrieves a timeline round with film IDs only. Returns nil,
// nil when missing.
func (s *Store) GetTimeline(ctx context.Context, id string) (*TimelineRound, error) {
	var r TimelineRound
	var ids string
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, movie_ids, score, total, perfect, created_at, completed_at FROM timeline_rounds WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &ids, &r.Score, &r.Total, &r.Perfect, &r.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting timeline round: %w", err)
	}

	var movieIDs []int64
	if err := json.Unmarshal([]byte(ids), &movieIDs); err != nil {
		return nil, fmt.Errorf("decoding films: %w", err)
	}
	for _, id := range movieIDs {
		r.Films = append(r.Films, TimelineFilm{MovieID: id})
	}
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return &r, nil
}

// CompleteTimeline records the score once.
func (s *Store) CompleteTimeline(ctx context.Context, id string, score int, perfect bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE timeline_rounds SET score = ?, perfect = ?, completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		score, perfect, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("completing timeline round: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyAnswered
	}
	return nil
}
