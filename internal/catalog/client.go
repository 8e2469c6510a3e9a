// Package catalog is a client for a TMDB-compatible movie metadata API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ziadkadry99/cineforum/internal/config"
	"github.com/ziadkadry99/cineforum/internal/logging"
)

var (
	ErrNotFound = errors.New("catalog: movie not found")
	ErrNoAPIKey = errors.New("catalog: no API key configured")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: HTTP %d: %s", e.Code, e.Body)
}

// Movie is catalog metadata for one film.
type Movie struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"original_title"`
	ReleaseDate   string   `json:"release_date"`
	Year          int      `json:"year"`
	Overview      string   `json:"overview"`
	PosterURL     string   `json:"poster_url"`
	Genres        []string `json:"genres"`
	Runtime       int      `json:"runtime"`
	Director      string   `json:"director"`
	Popularity    float64  `json:"popularity"`
}

// Page is one page of list results.
type Page struct {
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Results    []Movie `json:"results"`
}

// Client talks to the catalog API through a circuit breaker.
type Client struct {
	baseURL   string
	imageBase string
	apiKey    string
	language  string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
}

// New creates a client from config. The API key is read from the
// environment variable named in cfg.APIKeyEnv.
func New(cfg config.CatalogConfig) *Client {
	return NewWithKey(cfg, os.Getenv(cfg.APIKeyEnv))
}

// NewWithKey creates a client with an explicit API key.
func NewWithKey(cfg config.CatalogConfig, apiKey string) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		imageBase: strings.TrimRight(cfg.ImageBaseURL, "/"),
		apiKey:    apiKey,
		language:  cfg.Language,
		http:      &http.Client{Timeout: 15 * time.Second},
	}

	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "catalog-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing film is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Search finds movies by title.
func (c *Client) Search(ctx context.Context, query string) ([]Movie, error) {
	var page rawPage
	if err := c.get(ctx, "/search/movie", url.Values{"query": {query}}, &page); err != nil {
		return nil, err
	}
	return c.convertPage(page).Results, nil
}

// Popular returns one page of currently popular movies.
func (c *Client) Popular(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	var raw rawPage
	if err := c.get(ctx, "/movie/popular", url.Values{"page": {strconv.Itoa(page)}}, &raw); err != nil {
		return nil, err
	}
	p := c.convertPage(raw)
	return &p, nil
}

// Movie fetches full details for one film, including its director.
func (c *Client) Movie(ctx context.Context, id int64) (*Movie, error) {
	var raw rawMovie
	path := "/movie/" + strconv.FormatInt(id, 10)
	if err := c.get(ctx, path, url.Values{"append_to_response": {"credits"}}, &raw); err != nil {
		return nil, err
	}
	m := c.convert(raw)
	return &m, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	body, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("catalog request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing catalog response: %w", err)
	}
	return nil
}
