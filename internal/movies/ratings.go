package movies

import (
	"context"
	"fmt"
	"time"
)

// Rate stores userID's score for a film, overwriting any previous rating.
func (s *Store) Rate(ctx context.Context, userID string, movieID int64, score int, review string) (*Rating, error) {
	if score < 1 || score > 10 {
		return nil, ErrInvalidScore
	}
	m, err := s.Get(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ratings (user_id, movie_id, score, review, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, movie_id) DO UPDATE SET
		   score = excluded.score,
		   review = excluded.review,
		   updated_at = excluded.updated_at`,
		userID, movieID, score, review, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("saving rating: %w", err)
	}

	var r Rating
	err = s.db.QueryRowContext(ctx,
		`SELECT user_id, movie_id, score, review, created_at, updated_at FROM ratings WHERE user_id = ? AND movie_id = ?`,
		userID, movieID,
	).Scan(&r.UserID, &r.MovieID, &r.Score, &r.Review, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading rating: %w", err)
	}
	r.MovieTitle = m.Title
	return &r, nil
}

// DeleteRating removes a user's rating for a film.
func (s *Store) DeleteRating(ctx context.Context, userID string, movieID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ratings WHERE user_id = ? AND movie_id = ?`, userID, movieID); err != nil {
		return fmt.Errorf("deleting rating: %w", err)
	}
	return nil
}

// UserRatings returns a user's ratings, most recently updated first.
func (s *Store) UserRatings(ctx context.Context, userID string, limit int) ([]Rating, error) {
	query := `SELECT r.user_id, u.username, r.movie_id, m.title, r.score, r.review, r.created_at, r.updated_at
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		JOIN movies m ON m.id = r.movie_id
		WHERE r.user_id = ?
		ORDER BY r.updated_at DESC, r.score DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRatings(ctx, query, args...)
}

// TopRatedByUser returns a user's highest-scored films.
func (s *Store) TopRatedByUser(ctx context.Context, userID string, limit int) ([]Rating, error) {
	return s.queryRatings(ctx,
		`SELECT r.user_id, u.username, r.movie_id, m.title, r.score, r.review, r.created_at, r.updated_at
		 FROM ratings r
		 JOIN users u ON u.id = r.user_id
		 JOIN movies m ON m.id = r.movie_id
		 WHERE r.user_id = ?
		 ORDER BY r.score DESC, r.updated_at DESC
		 LIMIT ?`, userID, limit)
}

// FilmRatings returns every rating of a film, newest first.
func (s *Store) FilmRatings(ctx context.Context, movieID int64) ([]Rating, error) {
	return s.queryRatings(ctx,
		`SELECT r.user_id, u.username, r.movie_id, m.title, r.score, r.review, r.created_at, r.updated_at
		 FROM ratings r
		 JOIN users u ON u.id = r.user_id
		 JOIN movies m ON m.id = r.movie_id
		 WHERE r.movie_id = ?
		 ORDER BY r.updated_at DESC`, movieID)
}

// FilmSummary returns the average score and rating count of a film.
func (s *Store) FilmSummary(ctx context.Context, movieID int64) (Summary, error) {
	sum := Summary{MovieID: movieID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(score), 0.0), COUNT(*) FROM ratings WHERE movie_id = ?`, movieID,
	).Scan(&sum.Average, &sum.Count)
	if err != nil {
		return sum, fmt.Errorf("summarizing ratings: %w", err)
	}
	return sum, nil
}

func (s *Store) queryRatings(ctx context.Context, query string, args ...any) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	var out []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.UserID, &r.Username, &r.MovieID, &r.MovieTitle, &r.Score, &r.Review, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
