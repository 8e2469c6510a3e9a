package movies

import (
	"errors"
	"time"

	"github.com/ziadkadry99/cineforum/internal/catalog"
)

var (
	ErrNotFound     = errors.New("movie not found")
	ErrInvalidScore = errors.New("score must be between 1 and 10")
)

// Movie is a film in the club's local library. Its ID is the catalog ID.
type Movie struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title,omitempty"`
	Year          int       `json:"year"`
	ReleaseDate   string    `json:"release_date,omitempty"`
	Overview      string    `json:"overview"`
	PosterURL     string    `json:"poster_url,omitempty"`
	Genres        []string  `json:"genres"`
	Runtime       int       `json:"runtime,omitempty"`
	Director      string    `json:"director,omitempty"`
	Popularity    float64   `json:"popularity"`
	ImportedAt    time.Time `json:"imported_at"`
}

// FromCatalog converts catalog metadata into a library film.
func FromCatalog(m catalog.Movie) Movie {
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return Movie{
		ID:            m.ID,
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		Year:          m.Year,
		ReleaseDate:   m.ReleaseDate,
		Overview:      m.Overview,
		PosterURL:     m.PosterURL,
		Genres:        genres,
		Runtime:       m.Runtime,
		Director:      m.Director,
		Popularity:    m.Popularity,
	}
}

// ListFilter narrows List results.
type ListFilter struct {
	Query  string
	Genre  string
	Year   int
	Limit  int
	Offset int
}

// Rating is one user's score for one film. A user has at most one rating
// per film; rating again overwrites it.
type Rating struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	MovieID    int64     `json:"movie_id"`
	MovieTitle string    `json:"movie_title,omitempty"`
	Score      int       `json:"score"`
	Review     string    `json:"review,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Summary aggregates a film's ratings.
type Summary struct {
	MovieID int64   `json:"movie_id"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
