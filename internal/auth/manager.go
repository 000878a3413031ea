// Package auth keeps the user authenticated: it owns the stored
// session, the browser login handshake and the background token
// refresh.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/alexjbarnes/recipe-sync/internal/secrets"
	"github.com/alexjbarnes/recipe-sync/internal/session"
)

const (
	// defaultRefreshInterval is how often the refresh loop inspects the
	// token's remaining lifetime.
	defaultRefreshInterval = time.Hour

	// defaultLoginTimeout bounds the whole browser login handshake.
	defaultLoginTimeout = 5 * time.Minute
)

// TokenRefresher exchanges a valid token for a fresh one.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, currentToken string) (string, error)
}

// Config holds dependencies and settings for the auth manager.
type Config struct {
	Store secrets.Store
	API   TokenRefresher

	// WebBaseURL is the web application origin hosting the desktop
	// login page.
	WebBaseURL string

	// OpenURL opens a URL in the user's browser. Defaults to
	// browser.OpenURL; tests inject a fake.
	OpenURL func(url string) error

	RefreshInterval time.Duration
	LoginTimeout    time.Duration

	Logger *slog.Logger
}

// Manager owns the current session. All methods are safe for concurrent
// use.
type Manager struct {
	store           secrets.Store
	api             TokenRefresher
	webBaseURL      string
	openURL         func(string) error
	refreshInterval time.Duration
	loginTimeout    time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	session *session.Session
}

// NewManager creates a manager and loads any stored session from the
// secret store. A malformed or expired stored session is evicted, not
// an error.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.OpenURL == nil {
		cfg.OpenURL = browser.OpenURL
	}

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = defaultLoginTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	sess, err := session.Load(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("loading stored session: %w", err)
	}

	m := &Manager{
		store:           cfg.Store,
		api:             cfg.API,
		webBaseURL:      cfg.WebBaseURL,
		openURL:         cfg.OpenURL,
		refreshInterval: cfg.RefreshInterval,
		loginTimeout:    cfg.LoginTimeout,
		logger:          cfg.Logger,
		session:         sess,
	}

	if sess != nil {
		m.logger.Info("session restored", slog.String("user_id", sess.UserID))
	} else {
		m.logger.Info("no stored session")
	}

	return m, nil
}

// CurrentSession returns a copy of the current session, or nil when
// logged out.
func (m *Manager) CurrentSession() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.Clone()
}

// IsAuthenticated reports whether a session is present.
func (m *Manager) IsAuthenticated() bool {
	return m.CurrentSession() != nil
}

// LoginWithToken validates the raw token, persists the session and
// installs it as current.
func (m *Manager) LoginWithToken(rawToken string) error {
	sess, err := session.New(rawToken)
	if err != nil {
		return err
	}

	if err := sess.Save(m.store); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	m.logger.Info("session installed", slog.String("user_id", sess.UserID))

	return nil
}

// Logout clears the stored session and the in-memory one. Idempotent.
func (m *Manager) Logout() error {
	if err := session.Delete(m.store); err != nil {
		return fmt.Errorf("clearing stored session: %w", err)
	}

	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.logger.Info("logged out")

	return nil
}

// RunRefreshLoop periodically refreshes the token before it expires.
// Blocks until the context is cancelled.
func (m *Manager) RunRefreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.refreshTick(ctx)
		}
	}
}

// refreshTick refreshes the token when it is inside the refresh window.
// A token the server will not renew does not become valid by waiting,
// so refresh failure means logout.
func (m *Manager) refreshTick(ctx context.Context) {
	sess := m.CurrentSession()
	if sess == nil {
		return
	}

	tok, err := sess.Token()
	if err != nil {
		m.logger.Error("stored token unparsable, logging out", slog.String("error", err.Error()))
		m.logoutAfterFailure()

		return
	}

	now := time.Now()
	if !tok.ShouldRefresh(now) {
		m.logger.Debug("token still fresh", slog.Duration("expires_in", tok.TimeUntilExpiry(now)))
		return
	}

	m.logger.Info("refreshing token", slog.Duration("expires_in", tok.TimeUntilExpiry(now)))

	newToken, err := m.api.RefreshToken(ctx, sess.RawToken)
	if err != nil {
		m.logger.Error("token refresh failed, logging out", slog.String("error", err.Error()))
		m.logoutAfterFailure()

		return
	}

	if err := m.LoginWithToken(newToken); err != nil {
		m.logger.Error("failed to install refreshed token", slog.String("error", err.Error()))
		return
	}

	m.logger.Info("token refreshed")
}

func (m *Manager) logoutAfterFailure() {
	if err := m.Logout(); err != nil {
		m.logger.Error("logout failed", slog.String("error", err.Error()))
	}
}
