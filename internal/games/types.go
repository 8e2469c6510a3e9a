// Package games runs the trivia and timeline mini-games.
package games

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("round not found")
	ErrAlreadyAnswered = errors.New("round already answered")
	ErrAnswerCount     = errors.New("answer count does not match the round")
	ErrNotEnoughFilms  = errors.New("not enough films in the library for this game")
	ErrInvalidOrder    = errors.New("order must contain exactly the round's films")
	ErrDifficulty      = errors.New("difficulty must be easy or hard")
)

// Difficulty of a trivia round.
type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyHard Difficulty = "hard"
)

// Question is a multiple-choice trivia question. Answer is the index of
// the correct option and is never sent before the round is answered.
type Question struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

// valid reports whether q has four distinct non-empty options and an answer among them.
func (q Question) valid() bool {
	if q.Prompt == "" || len(q.Options) != 4 || q.Answer < 0 || q.Answer >= len(q.Options) {
		return false
	}
	seen := make(map[string]bool, 4)
	for _, o := range q.Options {
		if o == "" || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}

// PublicQuestion is a question as shown to the player.
type PublicQuestion struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// TriviaRound is one trivia game.
type TriviaRound struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	MovieID     int64      `json:"movie_id,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Source      string     `json:"source"`
	Questions   []Question `json:"-"`
	Answers     []int      `json:"answers,omitempty"`
	Correct     int        `json:"correct"`
	Total       int        `json:"total"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Public returns the questions without their answers.
func (r *TriviaRound) Public() []PublicQuestion {
	out := make([]PublicQuestion, len(r.Questions))
	for i, q := range r.Questions {
		out[i] = PublicQuestion{Prompt: q.Prompt, Options: q.Options}
	}
	return out
}

// TimelineFilm is a film card in a timeline round.
type TimelineFilm struct {
	MovieID   int64  `json:"movie_id"`
	Title     string `json:"title"`
	PosterURL string `json:"poster_url,omitempty"`
	Year      int    `json:"year,omitempty"`
}

// TimelineRound is one timeline game: order the films by release year.
type TimelineRound struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Films       []TimelineFilm `json:"films"`
	Score       int            `json:"score"`
	Total       int            `json:"total"`
	Perfect     bool           `json:"perfect"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
