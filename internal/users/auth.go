package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ziadkadry99/cineforum/internal/logging"
)

// SessionTTL is how long a login token stays valid.
const SessionTTL = 30 * 24 * time.Hour

// Service handles registration, login and token checks.
type Service struct {
	store *Store

	// HashCost is the bcrypt cost; tests lower it.
	HashCost int
	now      func() time.Time
}

// NewService creates an auth service over the given store.
func NewService(store *Store) *Service {
	return &Service{store: store, HashCost: bcrypt.DefaultCost, now: time.Now}
}

// Store exposes the underlying user store.
func (s *Service) Store() *Store { return s.store }

// Register creates an account. The first account becomes an admin.
func (s *Service) Register(ctx context.Context, username, password, displayName string) (*User, error) {
	username = strings.TrimSpace(username)
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.store.Create(ctx, username, displayName, string(hash))
	if err != nil {
		return nil, err
	}
	logging.Info().Str("user", u.ID).Str("username", u.Username).Bool("admin", u.IsAdmin).Msg("user registered")
	return u, nil
}

// Login checks credentials and issues a new session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, hash, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if u.ID == ModeratorID {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", nil, err
	}
	if err := s.store.CreateSession(ctx, hashToken(token), u.ID, s.now().Add(SessionTTL)); err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	u, expiresAt, err := s.store.SessionUser(ctx, hashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !s.now().Before(expiresAt) {
		s.store.DeleteSession(ctx, hashToken(token))
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// Logout revokes a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, hashToken(token))
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
