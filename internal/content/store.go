package content

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/cineforum/internal/db"
)

// Store persists news articles.
type Store struct {
	db *db.DB
}

// NewStore creates a new content store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveArticle inserts a, filling its ID and timestamp.
func (s *Store) SaveArticle(ctx context.Context, a *Article) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO news_articles (id, title, body, model, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Body, a.Model, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}
	return nil
}

// ListArticles returns the newest articles first.
func (s *Store) ListArticles(ctx context.Context, limit int) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, body, model, created_at FROM news_articles ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.Model, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
