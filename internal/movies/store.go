package movies

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/cineforum/internal/db"
)

// Store manages persistence of the film library and ratings.
type Store struct {
	db *db.DB
}

// NewStore creates a new movie store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const movieColumns = `id, title, original_title, year, release_date, overview, poster_url, genres, runtime, director, popularity, imported_at`

func scanMovie(row interface{ Scan(...any) error }) (*Movie, error) {
	var m Movie
	var genres string
	err := row.Scan(&m.ID, &m.Title, &m.OriginalTitle, &m.Year, &m.ReleaseDate, &m.Overview,
		&m.PosterURL, &genres, &m.Runtime, &m.Director, &m.Popularity, &m.ImportedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(genres), &m.Genres); err != nil || m.Genres == nil {
		m.Genres = []string{}
	}
	return &m, nil
}

func (s *Store) queryMovies(ctx context.Context, query string, args ...any) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying movies: %w", err)
	}
	defer rows.Close()

	var out []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning movie: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Upsert inserts a film or refreshes its metadata.
func (s *Store) Upsert(ctx context.Context, m Movie) (*Movie, error) {
	if m.Genres == nil {
		m.Genres = []string{}
	}
	genres, err := json.Marshal(m.Genres)
	if err != nil {
		return nil, fmt.Errorf("encoding genres: %w", err)
	}
	m.ImportedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO movies (`+movieColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   original_title = excluded.original_title,
		   year = excluded.year,
		   release_date = excluded.release_date,
		   overview = excluded.overview,
		   poster_url = excluded.poster_url,
		   genres = excluded.genres,
		   runtime = excluded.runtime,
		   director = CASE WHEN excluded.director != '' THEN excluded.director ELSE movies.director END,
		   popularity = excluded.popularity,
		   imported_at = excluded.imported_at`,
		m.ID, m.Title, m.OriginalTitle, m.Year, m.ReleaseDate, m.Overview,
		m.PosterURL, string(genres), m.Runtime, m.Director, m.Popularity, m.ImportedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting movie: %w", err)
	}
	return &m, nil
}

// Get retrieves a film by ID. Returns nil, nil when it is not in the library.
func (s *Store) Get(ctx context.Context, id int64) (*Movie, error) {
	m, err := scanMovie(s.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting movie: %w", err)
	}
	return m, nil
}

// GetMany returns the films with the given IDs, keyed by ID.
func (s *Store) GetMany(ctx context.Context, ids []int64) (map[int64]Movie, error) {
	out := make(map[int64]Movie, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	list, err := s.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		out[m.ID] = m
	}
	return out, nil
}

// List returns films matching the filter, most popular first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE 1=1`
	var args []any

	if f.Query != "" {
		query += ` AND (title LIKE ? OR original_title LIKE ? OR director LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like, like)
	}
	if f.Genre != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(movies.genres) g WHERE g.value = ? COLLATE NOCASE)`
		args = append(args, f.Genre)
	}
	if f.Year > 0 {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}

	query += ` ORDER BY popularity DESC, title`

	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	return s.queryMovies(ctx, query, args...)
}

// Count returns the number of films in the library.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting movies: %w", err)
	}
	return n, nil
}

// FindByTitle resolves a free-text title against the library: an exact
// case-insensitive match on title or original title first, then the most
// popular partial match. Returns nil, nil when nothing matches.
func (s *Store) FindByTitle(ctx context.Context, title string) (*Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	list, err := s.queryMovies(ctx,
		`SELECT `+movieColumns+` FROM movies
		 WHERE title = ? COLLATE NOCASE OR original_title = ? COLLATE NOCASE
		 ORDER BY popularity DESC LIMIT 1`, title, title)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		list, err = s.List(ctx, ListFilter{Query: title, Limit: 1})
		if err != nil {
			return nil, err
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// Random returns up to n random films, optionally only those with a known
// year and director.
func (s *Store) Random(ctx context.Context, n int, withDirector bool) ([]Movie, error) {
	where := ""
	if withDirector {
		where = ` WHERE director != '' AND year > 0`
	}
	return s.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies`+where+` ORDER BY RANDOM() LIMIT ?`, n)
}

// RandomDistinctYears returns up to n random films that all have different
// release years.
func (s *Store) RandomDistinctYears(ctx context.Context, n int) ([]Movie, error) {
	return s.queryMovies(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id IN (
		   SELECT (SELECT m2.id FROM movies m2 WHERE m2.year = y.year ORDER BY RANDOM() LIMIT 1)
		   FROM (SELECT DISTINCT year FROM movies WHERE year > 0) y
		   ORDER BY RANDOM() LIMIT ?
		 )`, n)
}

// Recent returns the most recently imported films.
func (s *Store) Recent(ctx context.Context, limit int) ([]Movie, error) {
	return s.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY imported_at DESC, popularity DESC LIMIT ?`, limit)
}

// All returns every film in the library.
func (s *Store) All(ctx context.Context) ([]Movie, error) {
	return s.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY id`)
}
