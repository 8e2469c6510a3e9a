// Package similar finds films with similar plots using a chromem-go vector
// index over film overviews.
package similar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/cineforum/internal/embeddings"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/progress"
)

const collectionName = "films"

// batchSize is how many films are embedded per AddDocuments call when
// indexing the whole library.
const batchSize = 50

// ErrDisabled is returned when no embedder is configured.
var ErrDisabled = errors.New("similarity search is not configured")

// Result is a similar film with its cosine similarity to the query film.
type Result struct {
	Movie      movies.Movie `json:"movie"`
	Similarity float32      `json:"similarity"`
}

// Index is an in-memory vector index of the film library.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
	films      *movies.Store
}

// New creates an empty index. A nil embedder yields a nil *Index, which
// answers every call with ErrDisabled.
func New(embedder embeddings.Embedder, films *movies.Store) (*Index, error) {
	if embedder == nil {
		return nil, nil
	}
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, map[string]string{"embedder": embedder.Name()}, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{db: db, collection: col, embedFunc: ef, films: films}, nil
}

// Enabled reports whether the index can be used.
func (x *Index) Enabled() bool { return x != nil }

// Count returns the number of indexed films.
func (x *Index) Count() int {
	if x == nil {
		return 0
	}
	return x.collection.Count()
}

// document builds the text embedded for a film. The hash lets Index skip
// films whose text has not changed.
func document(m movies.Movie) chromem.Document {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Year > 0 {
		fmt.Fprintf(&b, " (%d)", m.Year)
	}
	if m.Director != "" {
		b.WriteString(". Regia di " + m.Director)
	}
	if len(m.Genres) > 0 {
		b.WriteString(". Generi: " + strings.Join(m.Genres, ", "))
	}
	if m.Overview != "" {
		b.WriteString(". " + m.Overview)
	}
	content := b.String()
	sum := sha256.Sum256([]byte(content))

	return chromem.Document{
		ID:      strconv.FormatInt(m.ID, 10),
		Content: content,
		Metadata: map[string]string{
			"title": m.Title,
			"hash":  hex.EncodeToString(sum[:8]),
		},
	}
}

// Index embeds and stores films, skipping those already indexed with the
// same text. It returns the number of films embedded.
func (x *Index) Index(ctx context.Context, films []movies.Movie) (int, error) {
	if x == nil {
		return 0, ErrDisabled
	}
	var docs []chromem.Document
	for _, m := range films {
		doc := document(m)
		if existing, err := x.collection.GetByID(ctx, doc.ID); err == nil && existing.Metadata["hash"] == doc.Metadata["hash"] {
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := x.collection.AddDocuments(ctx, docs, 4); err != nil {
		return 0, fmt.Errorf("indexing films: %w", err)
	}
	return len(docs), nil
}

// IndexLibrary indexes every film in the library in batches.
func (x *Index) IndexLibrary(ctx context.Context, rep progress.Reporter) (int, error) {
	if x == nil {
		return 0, ErrDisabled
	}
	if rep == nil {
		rep = progress.Nop{}
	}
	all, err := x.films.All(ctx)
	if err != nil {
		return 0, err
	}

	rep.Start(len(all))
	defer rep.Finish()

	indexed := 0
	for i := 0; i < len(all); i += batchSize {
		batch := all[i:min(i+batchSize, len(all))]
		n, err := x.Index(ctx, batch)
		if err != nil {
			return indexed, err
		}
		indexed += n
		rep.Update(i+len(batch), batch[len(batch)-1].Title)
	}

	logging.Info().Int("films", len(all)).Int("embedded", indexed).Msg("similarity index ready")
	return indexed, nil
}

// Similar returns up to n films most similar to movieID, never the film
// itself. A film missing from the index is embedded on demand.
func (x *Index) Similar(ctx context.Context, movieID int64, n int) ([]Result, error) {
	if x == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 5
	}

	id := strconv.FormatInt(movieID, 10)
	doc, err := x.collection.GetByID(ctx, id)
	if err != nil {
		film, err := x.films.Get(ctx, movieID)
		if err != nil {
			return nil, err
		}
		if film == nil {
			return nil, movies.ErrNotFound
		}
		if _, err := x.Index(ctx, []movies.Movie{*film}); err != nil {
			return nil, err
		}
		if doc, err = x.collection.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("reading indexed film: %w", err)
		}
	}

	// chromem-go requires nResults <= collection size.
	k := min(n+1, x.collection.Count())
	if k <= 1 {
		return []Result{}, nil
	}
	hits, err := x.collection.QueryEmbedding(ctx, doc.Embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if h.ID == id {
			continue
		}
		if v, err := strconv.ParseInt(h.ID, 10, 64); err == nil {
			ids = append(ids, v)
		}
	}
	byID, err := x.films.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, n)
	for _, h := range hits {
		if h.ID == id || len(out) == n {
			continue
		}
		v, _ := strconv.ParseInt(h.ID, 10, 64)
		m, ok := byID[v]
		if !ok {
			// Removed from the library since it was indexed.
			continue
		}
		out = append(out, Result{Movie: m, Similarity: h.Similarity})
	}
	return out, nil
}

// Persist writes the index to a gzip-compressed gob file.
func (x *Index) Persist(path string) error {
	if x == nil {
		return ErrDisabled
	}
	return x.db.ExportToFile(path, true, "")
}

// Load restores a previously persisted index. A missing file is not an error.
func (x *Index) Load(path string) error {
	if x == nil {
		return ErrDisabled
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := x.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire the collection reference after import.
	col := x.db.GetCollection(collectionName, x.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	x.collection = col
	return nil
}
