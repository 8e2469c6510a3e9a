package movies

import (
	"context"
	"errors"
	"fmt"

	"github.com/ziadkadry99/cineforum/internal/catalog"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/progress"
	"github.com/ziadkadry99/cineforum/internal/realtime"
)

// Catalog is the subset of the catalog client the library needs.
type Catalog interface {
	Search(ctx context.Context, query string) ([]catalog.Movie, error)
	Movie(ctx context.Context, id int64) (*catalog.Movie, error)
	Popular(ctx context.Context, page int) (*catalog.Page, error)
}

// Service ties the library to the catalog, missions and the change feed.
type Service struct {
	store   *Store
	catalog Catalog
	engine  *gamification.Engine
	pub     realtime.Publisher
}

// NewService creates a movie service. catalog and engine may be nil.
func NewService(store *Store, cat Catalog, engine *gamification.Engine, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Service{store: store, catalog: cat, engine: engine, pub: pub}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// CatalogEnabled reports whether films can be imported.
func (s *Service) CatalogEnabled() bool { return s.catalog != nil }

// ErrNoCatalog is returned when no catalog client is configured.
var ErrNoCatalog = errors.New("movie catalog not configured")

// ImportFromCatalog fetches a film's details and upserts it.
func (s *Service) ImportFromCatalog(ctx context.Context, id int64) (*Movie, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	cm, err := s.catalog.Movie(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching movie %d: %w", id, err)
	}
	m, err := s.store.Upsert(ctx, FromCatalog(*cm))
	if err != nil {
		return nil, err
	}
	s.pub.Publish("movies", "imported", m)
	return m, nil
}

// ImportPopular imports the given number of pages of popular films. A film
// that fails to import is logged and skipped. Returns the number imported.
func (s *Service) ImportPopular(ctx context.Context, pages int, rep progress.Reporter) (int, error) {
	if s.catalog == nil {
		return 0, ErrNoCatalog
	}
	if rep == nil {
		rep = progress.Nop{}
	}

	var ids []int64
	for page := 1; page <= pages; page++ {
		p, err := s.catalog.Popular(ctx, page)
		if err != nil {
			return 0, fmt.Errorf("listing popular page %d: %w", page, err)
		}
		for _, m := range p.Results {
			ids = append(ids, m.ID)
		}
		if page >= p.TotalPages {
			break
		}
	}

	rep.Start(len(ids))
	defer rep.Finish()

	imported := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		m, err := s.ImportFromCatalog(ctx, id)
		if err != nil {
			logging.Warn().Err(err).Int64("movie", id).Msg("import failed")
			rep.Update(i+1, fmt.Sprintf("skipped %d", id))
			continue
		}
		imported++
		rep.Update(i+1, m.Title)
	}
	return imported, nil
}

// Search queries the catalog and marks which results are already in the library.
func (s *Service) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	results, err := s.catalog.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	local, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		_, inLibrary := local[r.ID]
		out = append(out, SearchResult{Movie: FromCatalog(r), InLibrary: inLibrary})
	}
	return out, nil
}

// SearchResult is a catalog hit annotated with library membership.
type SearchResult struct {
	Movie
	InLibrary bool `json:"in_library"`
}

// Rate records a rating, re-evaluates missions and announces the change.
func (s *Service) Rate(ctx context.Context, userID string, movieID int64, score int, review string) (*Rating, *gamification.Award, error) {
	r, err := s.store.Rate(ctx, userID, movieID, score, review)
	if err != nil {
		return nil, nil, err
	}
	s.pub.Publish("ratings", "rated", r)

	var award *gamification.Award
	if s.engine != nil {
		award = s.engine.Track(ctx, userID)
	}
	return r, award, nil
}
