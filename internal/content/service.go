package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/llm"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// Topic is the realtime topic for published news.
const Topic = "news"

const (
	maxThemeFilms       = 5
	maxRecommendations  = 5
	newsFilms           = 8
	recommendationBasis = 5
)

const newsPrompt = `Sei il redattore della gazzetta di un cineforum. Scrivi in italiano un breve
articolo in markdown (150-250 parole) che inizia con un titolo "# ...".
Parla dei film indicati con tono vivace, senza spoiler, e invita i soci a votarli e discuterne.`

const themePrompt = `Sei il programmatore di un cineforum. Proponi un tema per la prossima serata.
Rispondi solo con un oggetto JSON nel formato:
{"title":"...","blurb":"...","films":["titolo 1","titolo 2"]}
con al massimo 5 film, preferendo quelli della libreria indicata. Scrivi in italiano.`

const recommendPrompt = `Sei un critico cinematografico che consiglia film ai soci di un cineforum.
Rispondi solo con un oggetto JSON nel formato:
{"recommendations":[{"title":"...","reason":"..."}]}
con al massimo 5 film che l'utente non ha già votato. Motivazioni brevi, in italiano.`

// Service generates content with an LLM.
type Service struct {
	store    *Store
	movies   *movies.Store
	provider llm.Provider
	model    string
	pub      realtime.Publisher
	timeout  time.Duration
}

// NewService creates the content service. A nil provider disables every
// operation with ErrNoProvider.
func NewService(store *Store, films *movies.Store, provider llm.Provider, model string, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Service{
		store:    store,
		movies:   films,
		provider: provider,
		model:    model,
		pub:      pub,
		timeout:  2 * time.Minute,
	}
}

// Enabled reports whether an LLM provider is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

// Store returns the article store.
func (s *Service) Store() *Store { return s.store }

// GenerateNews writes, stores and publishes an article about recently
// imported films.
func (s *Service) GenerateNews(ctx context.Context) (*Article, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	films, err := s.movies.Recent(ctx, newsFilms)
	if err != nil {
		return nil, err
	}
	if len(films) == 0 {
		return nil, fmt.Errorf("%w: the library is empty", ErrEmptyReply)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: newsPrompt},
			{Role: llm.RoleUser, Content: "Film:\n" + describeFilms(films)},
		},
		MaxTokens:   800,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("generating news: %w", err)
	}
	body := llm.StripFences(resp.Content)
	if body == "" {
		return nil, ErrEmptyReply
	}

	a := &Article{Model: resp.Model}
	if a.Model == "" {
		a.Model = s.model
	}
	a.Title, a.Body = splitTitle(body, "Notizie dal cineforum")
	if err := s.store.SaveArticle(ctx, a); err != nil {
		return nil, err
	}
	if a.HTML, err = RenderHTML(a.Body); err != nil {
		return nil, fmt.Errorf("rendering article: %w", err)
	}

	logging.Info().Str("article", a.ID).Str("title", a.Title).Msg("news generated")
	s.pub.Publish(Topic, "published", a)
	return a, nil
}

// News returns the latest articles rendered to HTML.
func (s *Service) News(ctx context.Context, limit int) ([]Article, error) {
	list, err := s.store.ListArticles(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].HTML, err = RenderHTML(list[i].Body); err != nil {
			return nil, fmt.Errorf("rendering article %s: %w", list[i].ID, err)
		}
	}
	return list, nil
}

type themeReply struct {
	Title string   `json:"title"`
	Blurb string   `json:"blurb"`
	Films []string `json:"films"`
}

// SuggestTheme proposes an event theme, optionally steered by hint.
func (s *Service) SuggestTheme(ctx context.Context, hint string) (*Theme, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	library, err := s.movies.List(ctx, movies.ListFilter{Limit: 40})
	if err != nil {
		return nil, err
	}

	prompt := "Libreria:\n" + describeFilms(library)
	if hint = strings.TrimSpace(hint); hint != "" {
		prompt += "\nSpunto: " + hint
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reply themeReply
	err = llm.CompleteJSON(ctx, s.provider, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: themePrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   600,
		Temperature: 0.9,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("suggesting theme: %w", err)
	}
	if strings.TrimSpace(reply.Title) == "" {
		return nil, ErrEmptyReply
	}

	theme := &Theme{Title: strings.TrimSpace(reply.Title), Blurb: strings.TrimSpace(reply.Blurb), Films: []ThemeFilm{}}
	for _, title := range reply.Films {
		if len(theme.Films) == maxThemeFilms {
			break
		}
		if title = strings.TrimSpace(title); title == "" {
			continue
		}
		m, err := s.movies.FindByTitle(ctx, title)
		if err != nil {
			return nil, err
		}
		theme.Films = append(theme.Films, ThemeFilm{Title: title, Movie: m})
	}
	return theme, nil
}

type recommendReply struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// Recommend suggests films for u based on their best-rated films. Films u
// already rated are left out.
func (s *Service) Recommend(ctx context.Context, u *users.User) ([]Recommendation, error) {
	if err := gamification.CheckUnlock(u, gamification.FeatureAIRecommendations); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	top, err := s.movies.TopRatedByUser(ctx, u.ID, recommendationBasis)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, ErrNoRatings
	}
	all, err := s.movies.UserRatings(ctx, u.ID, 0)
	if err != nil {
		return nil, err
	}
	rated := make(map[int64]bool, len(all))
	for _, r := range all {
		rated[r.MovieID] = true
	}

	var b strings.Builder
	b.WriteString("Film preferiti dell'utente:\n")
	for _, r := range top {
		fmt.Fprintf(&b, "- %s (voto %d/10)\n", r.MovieTitle, r.Score)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reply recommendReply
	err = llm.CompleteJSON(ctx, s.provider, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: recommendPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		MaxTokens:   800,
		Temperature: 0.7,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("recommending films: %w", err)
	}

	out := []Recommendation{}
	for _, rec := range reply.Recommendations {
		if len(out) == maxRecommendations {
			break
		}
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.Title == "" {
			continue
		}
		m, err := s.movies.FindByTitle(ctx, rec.Title)
		if err != nil {
			return nil, err
		}
		if m != nil && rated[m.ID] {
			continue
		}
		rec.Movie = m
		out = append(out, rec)
	}
	return out, nil
}

func describeFilms(films []movies.Movie) string {
	var b strings.Builder
	for _, m := range films {
		fmt.Fprintf(&b, "- %s", m.Title)
		if m.Year > 0 {
			fmt.Fprintf(&b, " (%d)", m.Year)
		}
		if m.Director != "" {
			fmt.Fprintf(&b, ", regia di %s", m.Director)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
