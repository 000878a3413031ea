// Package session persists the authenticated identity in the secret
// store and validates it on load.
package session

import (
	"fmt"
	"time"

	"github.com/alexjbarnes/recipe-sync/internal/secrets"
	"github.com/alexjbarnes/recipe-sync/internal/token"
)

// Service is the secret-store service name all session entries live
// under.
const Service = "recipe-sync-agent"

const (
	tokenKey  = "jwt_token"
	userIDKey = "user_id"
	emailKey  = "user_email"
)

// Session pairs a raw bearer token with the identity derived from its
// claims. Exactly one session is current at a time; the auth manager
// owns the in-memory copy and the secret store holds the durable one.
type Session struct {
	RawToken string
	UserID   string
	// Email is empty when the token carries no email claim.
	Email string
}

// New validates a raw token and derives a session from its claims.
func New(rawToken string) (*Session, error) {
	tok, err := token.Parse(rawToken)
	if err != nil {
		return nil, err
	}

	return &Session{
		RawToken: rawToken,
		UserID:   tok.UserID,
		Email:    tok.Email,
	}, nil
}

// Load reads the persisted session from the store. It returns (nil, nil)
// when no session is stored. A persisted token that is malformed or
// already expired is evicted: all session entries are deleted and the
// session is treated as absent.
func Load(store secrets.Store) (*Session, error) {
	raw, found, err := store.Get(Service, tokenKey)
	if err != nil {
		return nil, fmt.Errorf("loading session token: %w", err)
	}
	if !found {
		return nil, nil
	}

	tok, err := token.Parse(raw)
	if err != nil {
		_ = Delete(store)
		return nil, nil
	}

	if tok.IsExpired(time.Now()) {
		_ = Delete(store)
		return nil, nil
	}

	userID, found, err := store.Get(Service, userIDKey)
	if err != nil {
		return nil, fmt.Errorf("loading session user id: %w", err)
	}
	if !found {
		// Older sessions stored only the token; fall back to the claim.
		userID = tok.UserID
	}

	email, _, err := store.Get(Service, emailKey)
	if err != nil {
		return nil, fmt.Errorf("loading session email: %w", err)
	}

	return &Session{
		RawToken: raw,
		UserID:   userID,
		Email:    email,
	}, nil
}

// Save writes the session to the store. Called after every successful
// login or refresh.
func (s *Session) Save(store secrets.Store) error {
	if err := store.Set(Service, tokenKey, s.RawToken); err != nil {
		return fmt.Errorf("saving session token: %w", err)
	}

	if err := store.Set(Service, userIDKey, s.UserID); err != nil {
		return fmt.Errorf("saving session user id: %w", err)
	}

	if s.Email != "" {
		if err := store.Set(Service, emailKey, s.Email); err != nil {
			return fmt.Errorf("saving session email: %w", err)
		}
	}

	return nil
}

// Delete removes all session entries from the store. Idempotent.
func Delete(store secrets.Store) error {
	for _, key := range []string{tokenKey, userIDKey, emailKey} {
		if err := store.Delete(Service, key); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}

	return nil
}

// Token re-derives the parsed token view from the raw string. Claims
// are not cached beyond the raw token itself.
func (s *Session) Token() (*token.Token, error) {
	return token.Parse(s.RawToken)
}

// Clone returns a copy safe to hand out as a snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	copied := *s

	return &copied
}
