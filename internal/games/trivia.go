package games

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/movies"
)

const (
	sourceLLM     = "llm"
	sourceLibrary = "library"
)

const triviaPrompt = `Sei l'autore dei quiz di un cineforum. Scrivi domande di cinema in italiano.
Rispondi solo con un oggetto JSON nel formato:
{"questions":[{"question":"...","options":["a","b","c","d"],"answer":0}]}
dove "answer" è l'indice (0-3) dell'opzione corretta. Le quattro opzioni devono essere diverse.`

type triviaReply struct {
	Questions []Question `json:"questions"`
}

// llmQuestions asks the model for n questions and keeps the well-formed ones.
func (s *Service) llmQuestions(ctx context.Context, film *movies.Movie, d Difficulty, n int) ([]Question, error) {
	var topic string
	if film != nil {
		topic = fmt.Sprintf("Il film %q (%d) di %s. Trama: %s", film.Title, film.Year, orUnknown(film.Director), film.Overview)
	} else {
		titles, err := s.movies.Random(ctx, 10, false)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(titles))
		for i, m := range titles {
			names[i] = fmt.Sprintf("%s (%d)", m.Title, m.Year)
		}
		topic = "Cinema in generale, con spunti da questi film: " + strings.Join(names, ", ")
	}

	level := "facili, adatte a tutti"
	if d == DifficultyHard {
		level = "difficili, per veri cinefili"
	}

	var reply triviaReply
	err := llm.CompleteJSON(ctx, s.provider, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: triviaPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Scrivi %d domande %s.\nArgomento: %s", n, level, topic)},
		},
		MaxTokens:   1500,
		Temperature: 0.8,
	}, &reply)
	if err != nil {
		return nil, err
	}

	var out []Question
	for _, q := range reply.Questions {
		if q.valid() {
			out = append(out, q)
		}
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no usable questions")
	}
	return out, nil
}

// libraryQuestions builds year and director questions from the local library.
func (s *Service) libraryQuestions(ctx context.Context, film *movies.Movie, d Difficulty, n int) ([]Question, error) {
	pool, err := s.movies.Random(ctx, n*4+4, true)
	if err != nil {
		return nil, err
	}
	if film != nil && film.Year > 0 && film.Director != "" {
		pool = append([]movies.Movie{*film}, pool...)
	}

	var directors []string
	seen := make(map[string]bool)
	for _, m := range pool {
		if !seen[m.Director] {
			seen[m.Director] = true
			directors = append(directors, m.Director)
		}
	}

	var out []Question
	used := make(map[int64]bool)
	for _, m := range pool {
		if len(out) == n {
			break
		}
		if used[m.ID] {
			continue
		}
		used[m.ID] = true
		if len(directors) >= 4 && rand.IntN(2) == 0 {
			out = append(out, directorQuestion(m, directors))
			continue
		}
		out = append(out, yearQuestion(m, d))
	}
	if len(out) == 0 {
		return nil, ErrNotEnoughFilms
	}
	return out, nil
}

func yearQuestion(m movies.Movie, d Difficulty) Question {
	spread := 10
	if d == DifficultyHard {
		spread = 3
	}
	years := map[int]bool{m.Year: true}
	options := []string{strconv.Itoa(m.Year)}
	for len(options) < 4 {
		delta := rand.IntN(spread) + 1
		if rand.IntN(2) == 0 {
			delta = -delta
		}
		y := m.Year + delta
		if years[y] {
			continue
		}
		years[y] = true
		options = append(options, strconv.Itoa(y))
	}
	return shuffled(Question{
		Prompt:  fmt.Sprintf("In che anno è uscito %q?", m.Title),
		Options: options,
	})
}

func directorQuestion(m movies.Movie, directors []string) Question {
	options := []string{m.Director}
	for _, i := range rand.Perm(len(directors)) {
		if len(options) == 4 {
			break
		}
		if directors[i] != m.Director {
			options = append(options, directors[i])
		}
	}
	return shuffled(Question{
		Prompt:  fmt.Sprintf("Chi ha diretto %q?", m.Title),
		Options: options,
	})
}

// shuffled permutes q.Options; the correct option must be at index 0 on entry.
func shuffled(q Question) Question {
	correct := q.Options[0]
	rand.Shuffle(len(q.Options), func(i, j int) { q.Options[i], q.Options[j] = q.Options[j], q.Options[i] })
	for i, o := range q.Options {
		if o == correct {
			q.Answer = i
		}
	}
	return q
}

func orUnknown(s string) string {
	if s == "" {
		return "regista sconosciuto"
	}
	return s
}
