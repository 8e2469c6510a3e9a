// Package leaderboard aggregates rankings over users, ratings, games and
// past events.
package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// Store runs the ranking queries.
type Store struct {
	db *db.DB
}

// NewStore creates a new leaderboard store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// UserEntry is a ranked user.
type UserEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
	Value       int    `json:"value"`
}

// FilmEntry is a ranked film.
type FilmEntry struct {
	Rank      int     `json:"rank"`
	MovieID   int64   `json:"movie_id"`
	Title     string  `json:"title"`
	Year      int     `json:"year"`
	PosterURL string  `json:"poster_url,omitempty"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
}

// WinnerEntry is a closed event with its winning film.
type WinnerEntry struct {
	EventID  string    `json:"event_id"`
	Title    string    `json:"title"`
	Theme    string    `json:"theme,omitempty"`
	MovieID  int64     `json:"movie_id"`
	Movie    string    `json:"movie"`
	Year     int       `json:"year"`
	Votes    int       `json:"votes"`
	ClosedAt time.Time `json:"closed_at"`
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}

// TopUsersByXP ranks users by XP; ties go to the older account.
func (s *Store) TopUsersByXP(ctx context.Context, limit int) ([]UserEntry, error) {
	return s.users(ctx,
		`SELECT id, username, display_name, level, xp FROM users
		 WHERE id != ?
		 ORDER BY xp DESC, created_at ASC
		 LIMIT ?`, users.ModeratorID, limitOrDefault(limit))
}

// MostActiveRaters ranks users by number of ratings.
func (s *Store) MostActiveRaters(ctx context.Context, limit int) ([]UserEntry, error) {
	return s.users(ctx,
		`SELECT u.id, u.username, u.display_name, u.level, COUNT(r.movie_id) AS n
		 FROM users u JOIN ratings r ON r.user_id = u.id
		 GROUP BY u.id
		 ORDER BY n DESC, u.created_at ASC
		 LIMIT ?`, limitOrDefault(limit))
}

// TriviaChampions ranks users by correct trivia answers.
func (s *Store) TriviaChampions(ctx context.Context, limit int) ([]UserEntry, error) {
	return s.users(ctx,
		`SELECT u.id, u.username, u.display_name, u.level, SUM(t.correct) AS n
		 FROM users u JOIN trivia_rounds t ON t.user_id = u.id
		 WHERE t.completed_at IS NOT NULL
		 GROUP BY u.id
		 HAVING n > 0
		 ORDER BY n DESC, u.created_at ASC
		 LIMIT ?`, limitOrDefault(limit))
}

func (s *Store) users(ctx context.Context, query string, args ...any) ([]UserEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ranking users: %w", err)
	}
	defer rows.Close()

	out := []UserEntry{}
	for rows.Next() {
		e := UserEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.Level, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning user entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TopRatedFilms ranks films with at least minRatings ratings by average
// score, then rating count, then title.
func (s *Store) TopRatedFilms(ctx context.Context, minRatings, limit int) ([]FilmEntry, error) {
	if minRatings < 1 {
		minRatings = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.title, m.year, m.poster_url, AVG(r.score) AS avg_score, COUNT(*) AS n
		 FROM movies m JOIN ratings r ON r.movie_id = m.id
		 GROUP BY m.id
		 HAVING n >= ?
		 ORDER BY avg_score DESC, n DESC, m.title ASC
		 LIMIT ?`, minRatings, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("ranking films: %w", err)
	}
	defer rows.Close()

	out := []FilmEntry{}
	for rows.Next() {
		e := FilmEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.MovieID, &e.Title, &e.Year, &e.PosterURL, &e.Average, &e.Count); err != nil {
			return nil, fmt.Errorf("scanning film entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PastWinners lists closed events and their winning film, newest first.
func (s *Store) PastWinners(ctx context.Context, limit int) ([]WinnerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.title, e.theme, m.id, m.title, m.year, e.closed_at,
		   (SELECT COUNT(*) FROM event_votes v WHERE v.event_id = e.id AND v.movie_id = m.id)
		 FROM events e JOIN movies m ON m.id = e.winner_movie_id
		 WHERE e.phase = 'closed'
		 ORDER BY e.closed_at DESC
		 LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing winners: %w", err)
	}
	defer rows.Close()

	out := []WinnerEntry{}
	for rows.Next() {
		var e WinnerEntry
		var closed sql.NullTime
		if err := rows.Scan(&e.EventID, &e.Title, &e.Theme, &e.MovieID, &e.Movie, &e.Year, &closed, &e.Votes); err != nil {
			return nil, fmt.Errorf("scanning winner: %w", err)
		}
		e.ClosedAt = closed.Time
		out = append(out, e)
	}
	return out, rows.Err()
}
