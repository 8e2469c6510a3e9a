// Package content generates AI-written club content: news articles, event
// themes and personal film recommendations.
package content

import (
	"errors"
	"time"

	"github.com/ziadkadry99/cineforum/internal/movies"
)

var (
	ErrNoProvider = errors.New("no LLM provider configured")
	ErrNoRatings  = errors.New("rate some films first")
	ErrEmptyReply = errors.New("model returned no usable content")
)

// Article is a generated news article. Body is markdown.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	HTML      string    `json:"html,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// ThemeFilm is a suggested film for a theme, resolved against the library
// when possible.
type ThemeFilm struct {
	Title string        `json:"title"`
	Movie *movies.Movie `json:"movie,omitempty"`
}

// Theme is a suggested event theme.
type Theme struct {
	Title string      `json:"title"`
	Blurb string      `json:"blurb"`
	Films []ThemeFilm `json:"films"`
}

// Recommendation is one suggested film for a user.
type Recommendation struct {
	Title  string        `json:"title"`
	Reason string        `json:"reason"`
	Movie  *movies.Movie `json:"movie,omitempty"`
}
