package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/cineforum/internal/db"
)

// Store manages persistence of users and their sessions.
type Store struct {
	db *db.DB
}

// NewStore creates a new user store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const userColumns = `id, username, display_name, is_admin, xp, level, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.IsAdmin, &u.XP, &u.Level, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. The first user ever created becomes an admin.
func (s *Store) Create(ctx context.Context, username, displayName, passwordHash string) (*User, error) {
	u := &User{
		ID:          uuid.New().String(),
		Username:    username,
		DisplayName: displayName,
		Level:       1,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&taken); err != nil {
			return fmt.Errorf("checking username: %w", err)
		}
		if taken > 0 {
			return ErrUsernameTaken
		}

		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id != ?`, ModeratorID).Scan(&existing); err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		u.IsAdmin = existing == 0

		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, display_name, password_hash, is_admin, xp, level, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, 1, ?)`,
			u.ID, u.Username, u.DisplayName, passwordHash, u.IsAdmin, u.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureModerator creates the system account used by the AI moderator.
func (s *Store) EnsureModerator(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, username, display_name, password_hash, created_at)
		 VALUES (?, ?, ?, '!', ?)`,
		ModeratorID, ModeratorID, "Moderatore", time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating moderator account: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetByUsername returns the user and its password hash.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, string, error) {
	var hash string
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE username = ?`, username)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.IsAdmin, &u.XP, &u.Level, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting user: %w", err)
	}
	return &u, hash, nil
}

// List returns users ordered by username.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id != ? ORDER BY username`, ModeratorID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetAdmin grants or revokes the admin flag.
func (s *Store) SetAdmin(ctx context.Context, username string, admin bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE username = ?`, admin, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("updating admin flag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession stores a hashed session token.
func (s *Store) CreateSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		tokenHash, userID, time.Now().UTC(), expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// SessionUser resolves a hashed token to its user and expiry.
func (s *Store) SessionUser(ctx context.Context, tokenHash string) (*User, time.Time, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM sessions WHERE token_hash = ?`, tokenHash).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrUnauthenticated
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("getting session: %w", err)
	}

	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, time.Time{}, err
	}
	return u, expiresAt, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
