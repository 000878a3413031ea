package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
	"github.com/alexjbarnes/recipe-sync/internal/secrets"
)

// startLogin runs BrowserLogin in the background and returns the login
// URL handed to the fake browser plus the result channel.
func startLogin(t *testing.T, m *Manager, ctx context.Context) (*url.URL, <-chan error) {
	t.Helper()

	urls := make(chan string, 1)
	m.openURL = func(u string) error {
		urls <- u
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- m.BrowserLogin(ctx) }()

	select {
	case raw := <-urls:
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u, errCh
	case err := <-errCh:
		t.Fatalf("login finished before opening the browser: %v", err)
		return nil, nil
	}
}

func loginManager(t *testing.T, timeout time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		Store:        secrets.NewMemory(),
		WebBaseURL:   "https://recipesync.app",
		OpenURL:      func(string) error { return nil },
		LoginTimeout: timeout,
		Logger:       slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	return m
}

// callbackAddr extracts the loopback host:port from the login URL's
// callback parameter.
func callbackAddr(t *testing.T, loginURL *url.URL) string {
	t.Helper()

	cb, err := url.Parse(loginURL.Query().Get("callback"))
	require.NoError(t, err)

	return cb.Host
}

func sendCallback(t *testing.T, addr, rawToken, state string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "GET /auth/callback?token=%s&state=%s HTTP/1.1\r\nHost: localhost\r\n\r\n",
		url.QueryEscape(rawToken), url.QueryEscape(state))

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)

	return string(resp)
}

// --- handshake ---

func TestBrowserLoginSuccess(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 5*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())

	assert.Equal(t, "https", loginURL.Scheme)
	assert.Equal(t, "recipesync.app", loginURL.Host)
	assert.Equal(t, "/auth/desktops", loginURL.Path)

	state := loginURL.Query().Get("state")
	require.NotEmpty(t, state)

	resp := sendCallback(t, callbackAddr(t, loginURL), tokenExpiringIn(t, 24*time.Hour), state)
	assert.Contains(t, resp, "200 OK")
	assert.Contains(t, resp, "Signed in")

	require.NoError(t, <-errCh)
	require.True(t, m.IsAuthenticated())
	assert.Equal(t, "user-1", m.CurrentSession().UserID)
}

func TestBrowserLoginRejectsStateMismatch(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 5*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())

	resp := sendCallback(t, callbackAddr(t, loginURL), tokenExpiringIn(t, 24*time.Hour), "forged-state")
	assert.Contains(t, resp, "400 Bad Request")

	require.ErrorIs(t, <-errCh, apperrors.ErrAuthenticationRequired)
	assert.False(t, m.IsAuthenticated())
}

func TestBrowserLoginRejectsMissingToken(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 5*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())

	resp := sendCallback(t, callbackAddr(t, loginURL), "", loginURL.Query().Get("state"))
	assert.Contains(t, resp, "400 Bad Request")

	require.ErrorIs(t, <-errCh, apperrors.ErrAuthenticationRequired)
}

func TestBrowserLoginRejectsNonGET(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 5*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())

	conn, err := net.Dial("tcp", callbackAddr(t, loginURL))
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "POST /auth/callback?token=x&state=%s HTTP/1.1\r\nHost: localhost\r\n\r\n",
		loginURL.Query().Get("state"))

	require.ErrorIs(t, <-errCh, apperrors.ErrAuthenticationRequired)
	assert.False(t, m.IsAuthenticated())
}

// --- CORS preflight ---

func TestBrowserLoginPreflightSameConnection(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 5*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())
	state := loginURL.Query().Get("state")

	conn, err := net.Dial("tcp", callbackAddr(t, loginURL))
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "OPTIONS /auth/callback HTTP/1.1\r\nHost: localhost\r\nOrigin: https://recipesync.app\r\n\r\n")

	// Read the preflight response headers.
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "Access-Control-Allow-Origin")

	// Real request reuses the connection.
	fmt.Fprintf(conn, "GET /auth/callback?token=%s&state=%s HTTP/1.1\r\nHost: localhost\r\n\r\n",
		url.QueryEscape(tokenExpiringIn(t, 24*time.Hour)), url.QueryEscape(state))

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(resp), "200 OK")

	require.NoError(t, <-errCh)
	assert.True(t, m.IsAuthenticated())
}

func TestBrowserLoginPreflightNewConnection(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 10*time.Second)
	loginURL, errCh := startLogin(t, m, context.Background())
	state := loginURL.Query().Get("state")
	addr := callbackAddr(t, loginURL)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	fmt.Fprintf(conn, "OPTIONS /auth/callback HTTP/1.1\r\nHost: localhost\r\n\r\n")

	buf := make([]byte, 4096)
	_, err = conn.Read(buf)
	require.NoError(t, err)

	// Close instead of reusing; the handshake falls back to a fresh
	// accept.
	require.NoError(t, conn.Close())

	resp := sendCallback(t, addr, tokenExpiringIn(t, 24*time.Hour), state)
	assert.Contains(t, resp, "200 OK")

	require.NoError(t, <-errCh)
	assert.True(t, m.IsAuthenticated())
}

// --- timeouts and cancellation ---

func TestBrowserLoginTimesOut(t *testing.T) {
	t.Parallel()

	m := loginManager(t, 100*time.Millisecond)
	_, errCh := startLogin(t, m, context.Background())

	require.ErrorIs(t, <-errCh, apperrors.ErrAuthenticationTimeout)
	assert.False(t, m.IsAuthenticated())
}

func TestBrowserLoginHonorsContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	m := loginManager(t, time.Minute)
	_, errCh := startLogin(t, m, ctx)

	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestBrowserLoginPropagatesOpenURLError(t *testing.T) {
	t.Parallel()

	m := loginManager(t, time.Minute)
	m.openURL = func(string) error { return fmt.Errorf("no browser available") }

	err := m.BrowserLogin(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening browser")
}

// --- extractToken ---

func TestExtractToken(t *testing.T) {
	t.Parallel()

	request := "GET /auth/callback?token=abc&state=s1 HTTP/1.1\r\nHost: localhost\r\n\r\n"

	tok, ok := extractToken(request, "s1")
	require.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = extractToken(request, "other")
	assert.False(t, ok)

	_, ok = extractToken(request, "")
	assert.False(t, ok, "empty expected state must never match")

	_, ok = extractToken(strings.Replace(request, "GET", "PUT", 1), "s1")
	assert.False(t, ok)

	_, ok = extractToken("GET /auth/callback HTTP/1.1\r\n\r\n", "s1")
	assert.False(t, ok)
}
