package games

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/users"
)

const (
	DefaultTriviaQuestions = 5
	DefaultTimelineFilms   = 5
)

// Service runs trivia and timeline rounds.
type Service struct {
	store    *Store
	movies   *movies.Store
	provider llm.Provider
	model    string
	engine   *gamification.Engine

	TriviaQuestions int
	TimelineFilms   int
}

// NewService creates the games service. provider may be nil, in which case
// trivia questions are built from the local library.
func NewService(store *Store, films *movies.Store, provider llm.Provider, model string, engine *gamification.Engine) *Service {
	return &Service{
		store:           store,
		movies:          films,
		provider:        provider,
		model:           model,
		engine:          engine,
		TriviaQuestions: DefaultTriviaQuestions,
		TimelineFilms:   DefaultTimelineFilms,
	}
}

// TriviaResult is the outcome of an answered trivia round.
type TriviaResult struct {
	Round     *TriviaRound        `json:"round"`
	Results   []bool              `json:"results"`
	Solutions []int               `json:"solutions"`
	Award     *gamification.Award `json:"award,omitempty"`
}

// NewTrivia creates a round for u. movieID 0 means general questions.
func (s *Service) NewTrivia(ctx context.Context, u *users.User, movieID int64, d Difficulty) (*TriviaRound, error) {
	if d == "" {
		d = DifficultyEasy
	}
	switch d {
	case DifficultyEasy:
	case DifficultyHard:
		if err := gamification.CheckUnlock(u, gamification.FeatureTriviaHard); err != nil {
			return nil, err
		}
	default:
		return nil, ErrDifficulty
	}

	var film *movies.Movie
	if movieID != 0 {
		m, err := s.movies.Get(ctx, movieID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, movies.ErrNotFound
		}
		film = m
	}

	round := &TriviaRound{UserID: u.ID, MovieID: movieID, Difficulty: d}
	if s.provider != nil {
		qs, err := s.llmQuestions(ctx, film, d, s.TriviaQuestions)
		if err == nil {
			round.Questions, round.Source = qs, sourceLLM
		} else {
			logging.Warn().Err(err).Str("user", u.ID).Msg("trivia generation failed, using library questions")
		}
	}
	if round.Questions == nil {
		qs, err := s.libraryQuestions(ctx, film, d, s.TriviaQuestions)
		if err != nil {
			return nil, err
		}
		round.Questions, round.Source = qs, sourceLibrary
	}

	if err := s.store.SaveTrivia(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

// GetTrivia returns u's round.
func (s *Service) GetTrivia(ctx context.Context, u *users.User, id string) (*TriviaRound, error) {
	r, err := s.store.GetTrivia(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != u.ID {
		return nil, ErrNotFound
	}
	return r, nil
}

// AnswerTrivia checks answers, one per question, and records the result.
func (s *Service) AnswerTrivia(ctx context.Context, u *users.User, id string, answers []int) (*TriviaResult, error) {
	r, err := s.GetTrivia(ctx, u, id)
	if err != nil {
		return nil, err
	}
	if r.CompletedAt != nil {
		return nil, ErrAlreadyAnswered
	}
	if len(answers) != len(r.Questions) {
		return nil, ErrAnswerCount
	}

	res := &TriviaResult{
		Results:   make([]bool, len(answers)),
		Solutions: make([]int, len(answers)),
	}
	correct := 0
	for i, q := range r.Questions {
		res.Solutions[i] = q.Answer
		if answers[i] == q.Answer {
			res.Results[i] = true
			correct++
		}
	}

	if err := s.store.CompleteTrivia(ctx, id, answers, correct); err != nil {
		return nil, err
	}
	if r, err = s.store.GetTrivia(ctx, id); err != nil {
		return nil, err
	}
	res.Round = r
	res.Award = s.track(ctx, u.ID)

	logging.Info().Str("user", u.ID).Str("round", id).Int("correct", correct).Int("total", r.Total).Msg("trivia answered")
	return res, nil
}

// TimelineResult is the outcome of a submitted timeline round.
type TimelineResult struct {
	Round    *TimelineRound      `json:"round"`
	Solution []TimelineFilm      `json:"solution"`
	Award    *gamification.Award `json:"award,omitempty"`
}

// NewTimeline deals u a shuffled set of films with distinct release years.
func (s *Service) NewTimeline(ctx context.Context, u *users.User) (*TimelineRound, error) {
	if err := gamification.CheckUnlock(u, gamification.FeatureTimelineGame); err != nil {
		return nil, err
	}
	films, err := s.movies.RandomDistinctYears(ctx, s.TimelineFilms)
	if err != nil {
		return nil, err
	}
	if len(films) < 2 || len(films) < s.TimelineFilms {
		return nil, ErrNotEnoughFilms
	}
	rand.Shuffle(len(films), func(i, j int) { films[i], films[j] = films[j], films[i] })

	round := &TimelineRound{UserID: u.ID}
	for _, m := range films {
		round.Films = append(round.Films, TimelineFilm{MovieID: m.ID, Title: m.Title, PosterURL: m.PosterURL})
	}
	if err := s.store.SaveTimeline(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

// SubmitTimeline scores order, which must be a permutation of the round's
// film IDs from oldest to newest.
func (s *Service) SubmitTimeline(ctx context.Context, u *users.User, id string, order []int64) (*TimelineResult, error) {
	r, err := s.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != u.ID {
		return nil, ErrNotFound
	}
	if r.CompletedAt != nil {
		return nil, ErrAlreadyAnswered
	}

	ids := make([]int64, len(r.Films))
	for i, f := range r.Films {
		ids[i] = f.MovieID
	}
	if !samePermutation(ids, order) {
		return nil, ErrInvalidOrder
	}

	byID, err := s.movies.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	solution := make([]TimelineFilm, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("timeline film %d: %w", id, movies.ErrNotFound)
		}
		solution = append(solution, TimelineFilm{MovieID: m.ID, Title: m.Title, PosterURL: m.PosterURL, Year: m.Year})
	}
	slices.SortStableFunc(solution, func(a, b TimelineFilm) int { return a.Year - b.Year })

	score := 0
	for i, f := range solution {
		if order[i] == f.MovieID {
			score++
		}
	}
	perfect := score == len(solution)

	if err := s.store.CompleteTimeline(ctx, id, score, perfect); err != nil {
		return nil, err
	}
	r.Score, r.Perfect = score, perfect
	r.Films = solution

	logging.Info().Str("user", u.ID).Str("round", id).Int("score", score).Bool("perfect", perfect).Msg("timeline submitted")
	return &TimelineResult{Round: r, Solution: solution, Award: s.track(ctx, u.ID)}, nil
}

func samePermutation(want, got []int64) bool {
	if len(want) != len(got) {
		return false
	}
	a := slices.Clone(want)
	b := slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func (s *Service) track(ctx context.Context, userID string) *gamification.Award {
	if s.engine == nil {
		return nil
	}
	return s.engine.Track(ctx, userID)
}
