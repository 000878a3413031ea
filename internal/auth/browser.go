package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
)

const (
	// preflightReadTimeout is how long to wait for the browser to reuse
	// the preflight connection before falling back to a fresh accept.
	preflightReadTimeout = 5 * time.Second

	// callbackReadBuffer is the read buffer for the callback request.
	// The request is a GET with a JWT in the query string; 8KB covers
	// any realistic token.
	callbackReadBuffer = 8192
)

// BrowserLogin runs the interactive login handshake: bind a loopback
// callback listener, open the login page in the browser, wait for the
// redirect carrying the token. The state parameter ties the callback to
// this attempt; a mismatch is rejected.
//
// The callback is served on a raw TCP listener rather than net/http
// because browsers may send a CORS preflight and then reuse the same
// connection for the real request; we need to read a second request
// from an already-accepted connection, which net/http does not expose.
func (m *Manager) BrowserLogin(ctx context.Context) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("binding login callback listener: %w", err)
	}
	defer listener.Close()

	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("unexpected listener type %T", listener)
	}

	deadline := time.Now().Add(m.loginTimeout)
	if err := tcpListener.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting login deadline: %w", err)
	}

	// Unblock Accept when the caller gives up.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	port := listener.Addr().(*net.TCPAddr).Port

	stateID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("generating login state: %w", err)
	}
	state := stateID.String()

	callback := fmt.Sprintf("http://localhost:%d/auth/callback", port)
	loginURL := fmt.Sprintf("%s/auth/desktops?callback=%s&state=%s",
		m.webBaseURL, url.QueryEscape(callback), state)

	m.logger.Info("opening browser for login", slog.String("url", loginURL))

	if err := m.openURL(loginURL); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	err = m.awaitCallback(tcpListener, deadline, state)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if isTimeout(err) {
			return apperrors.ErrAuthenticationTimeout
		}

		return err
	}

	return nil
}

// awaitCallback accepts the browser's callback connection and completes
// the handshake. Browsers send an OPTIONS preflight first when the
// login page uses fetch; the real GET then arrives either on the same
// connection or on a new one.
func (m *Manager) awaitCallback(listener *net.TCPListener, deadline time.Time, state string) error {
	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("waiting for login callback: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting callback deadline: %w", err)
	}

	request, err := readRequest(conn)
	if err != nil {
		return fmt.Errorf("reading login callback: %w", err)
	}

	if !strings.HasPrefix(request, "OPTIONS ") {
		return m.handleCallback(conn, request, state)
	}

	m.logger.Debug("answering CORS preflight")

	if _, err := conn.Write([]byte(preflightResponse)); err != nil {
		return fmt.Errorf("writing preflight response: %w", err)
	}

	// The browser may reuse this connection for the real request.
	if err := conn.SetReadDeadline(time.Now().Add(preflightReadTimeout)); err != nil {
		return fmt.Errorf("setting preflight read deadline: %w", err)
	}

	followUp, err := readRequest(conn)
	if err == nil && followUp != "" {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("resetting callback deadline: %w", err)
		}

		return m.handleCallback(conn, followUp, state)
	}

	// Or it opens a fresh connection.
	next, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("waiting for login callback: %w", err)
	}
	defer next.Close()

	if err := next.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting callback deadline: %w", err)
	}

	request, err = readRequest(next)
	if err != nil {
		return fmt.Errorf("reading login callback: %w", err)
	}

	return m.handleCallback(next, request, state)
}

// handleCallback validates the callback request and installs the
// session, answering the browser with a success or failure page.
func (m *Manager) handleCallback(conn net.Conn, request, expectedState string) error {
	rawToken, ok := extractToken(request, expectedState)
	if !ok {
		m.logger.Warn("login callback rejected")
		_, _ = conn.Write([]byte(failureResponse))

		return fmt.Errorf("login callback rejected: %w", apperrors.ErrAuthenticationRequired)
	}

	if err := m.LoginWithToken(rawToken); err != nil {
		_, _ = conn.Write([]byte(failureResponse))

		return fmt.Errorf("installing session from callback: %w", err)
	}

	_, _ = conn.Write([]byte(successResponse))

	return nil
}

// extractToken parses the callback request line and returns the token
// when the request is a GET carrying the expected state.
func extractToken(request, expectedState string) (string, bool) {
	line, _, _ := strings.Cut(request, "\r\n")

	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "GET" {
		return "", false
	}

	_, query, found := strings.Cut(fields[1], "?")
	if !found {
		return "", false
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}

	if expectedState == "" || values.Get("state") != expectedState {
		return "", false
	}

	rawToken := values.Get("token")
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func readRequest(conn net.Conn) (string, error) {
	buf := make([]byte, callbackReadBuffer)

	n, err := conn.Read(buf)
	if err != nil {
		return "", err
	}

	return string(buf[:n]), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
