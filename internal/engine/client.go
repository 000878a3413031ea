// Package engine implements one synchronization pass against the
// recipe sync service over WebSocket: index the local directory, apply
// the server's document backlog, upload local changes, advance the
// cursor.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
	"github.com/alexjbarnes/recipe-sync/internal/state"
	syncpkg "github.com/alexjbarnes/recipe-sync/internal/sync"
)

const (
	// responseTimeout bounds each individual read while waiting for the
	// server. A silent connection past this is treated as dead.
	responseTimeout = 60 * time.Second

	// wsReadLimit is the WebSocket read limit. Recipe documents are
	// small text files; 16MB leaves generous headroom for batched
	// metadata.
	wsReadLimit = 16 * 1024 * 1024

	// syncPath is the WebSocket endpoint path on the sync host.
	syncPath = "/v1/sync"
)

// wsConn abstracts the WebSocket connection so the client can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

type dialFunc func(ctx context.Context, endpoint string) (wsConn, error)

// Client runs sync passes. Safe for reuse across passes; the WebSocket
// connection lives only for the duration of one RunOnce call.
type Client struct {
	state  *state.State
	logger *slog.Logger
	dial   dialFunc
}

var _ syncpkg.Engine = (*Client)(nil)

// New creates a sync engine persisting bookkeeping into the given state
// database.
func New(appState *state.State, logger *slog.Logger) *Client {
	return &Client{
		state:  appState,
		logger: logger,
		dial:   dialWS,
	}
}

func dialWS(ctx context.Context, endpoint string) (wsConn, error) {
	wsURL, err := syncURL(endpoint)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, fmt.Errorf("dialing sync service: %w", &apperrors.TransientError{Err: err})
	}

	conn.SetReadLimit(wsReadLimit)

	return conn, nil
}

// syncURL converts the configured HTTP endpoint into the WebSocket URL.
func syncURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: parsing sync endpoint: %v", apperrors.ErrInvalidConfiguration, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported sync endpoint scheme %q", apperrors.ErrInvalidConfiguration, u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + syncPath

	return u.String(), nil
}

// RunOnce performs one full pass and reports the outcome through the
// listener.
func (c *Client) RunOnce(ctx context.Context, listener syncpkg.Listener, params syncpkg.PassParams) error {
	err := c.runOnce(ctx, listener, params)
	if err != nil {
		listener.OnComplete(false, err.Error())
		return err
	}

	listener.OnComplete(true, "")

	return nil
}

func (c *Client) runOnce(ctx context.Context, listener syncpkg.Listener, params syncpkg.PassParams) error {
	if err := c.state.InitNamespace(params.NamespaceID); err != nil {
		return fmt.Errorf("preparing namespace state: %w", err)
	}

	listener.OnStatus(syncpkg.EventIndexing, "")

	local, err := scanDir(params.RecipesDir)
	if err != nil {
		return err
	}

	known, err := c.state.AllFiles(params.NamespaceID)
	if err != nil {
		return fmt.Errorf("loading file records: %w", err)
	}

	changed, deleted := diffLocal(local, known)
	c.logger.Info("local index complete",
		slog.Int("files", len(local)),
		slog.Int("changed", len(changed)),
		slog.Int("deleted", len(deleted)),
	)

	cursor, err := c.state.GetCursor(params.NamespaceID)
	if err != nil {
		return fmt.Errorf("loading cursor: %w", err)
	}

	listener.OnStatus(syncpkg.EventSyncing, "")

	conn, err := c.dial(ctx, params.Endpoint)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "pass complete")

	if err := c.handshake(ctx, conn, cursor, params); err != nil {
		return err
	}

	pass := &passRun{
		client:   c,
		conn:     conn,
		listener: listener,
		params:   params,
		pending:  len(changed) + len(deleted),
	}

	serverVersion, err := pass.downloadPhase(ctx)
	if err != nil {
		return err
	}

	if !params.DownloadOnly {
		if err := pass.uploadPhase(ctx, changed, deleted, local); err != nil {
			return err
		}
	}

	newCursor := state.Cursor{Version: serverVersion, Initial: false}
	if serverVersion < cursor.Version {
		newCursor.Version = cursor.Version
	}

	if err := c.state.SetCursor(params.NamespaceID, newCursor); err != nil {
		return fmt.Errorf("persisting cursor: %w", err)
	}

	c.logger.Info("sync pass complete",
		slog.Int64("cursor", newCursor.Version),
		slog.Int("synced", pass.synced),
	)

	return nil
}

// handshake sends init and waits for the server to accept the session.
func (c *Client) handshake(ctx context.Context, conn wsConn, cursor state.Cursor, params syncpkg.PassParams) error {
	init := initMessage{
		Op:           "init",
		Token:        params.Token,
		ID:           params.NamespaceID,
		Version:      cursor.Version,
		Initial:      cursor.Initial,
		Device:       params.Device,
		DownloadOnly: params.DownloadOnly,
	}

	if err := writeJSON(ctx, conn, init); err != nil {
		return fmt.Errorf("sending init: %w", &apperrors.TransientError{Err: err})
	}

	data, err := readTextMessage(ctx, conn)
	if err != nil {
		return fmt.Errorf("reading init response: %w", &apperrors.TransientError{Err: err})
	}

	var resp initResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decoding init response: %w", err)
	}

	if resp.Res == "unauthorized" {
		return fmt.Errorf("sync handshake: %w", apperrors.ErrAuthenticationRequired)
	}

	if resp.Res != "ok" {
		msg := resp.Msg
		if msg == "" {
			msg = resp.Res
		}

		return fmt.Errorf("sync handshake rejected: %s", msg)
	}

	c.logger.Debug("sync session established", slog.Int64("server_version", resp.Version))

	return nil
}

// passRun carries the per-pass progress shared between the download and
// upload phases.
type passRun struct {
	client   *Client
	conn     wsConn
	listener syncpkg.Listener
	params   syncpkg.PassParams
	synced   int
	pending  int
}

func (p *passRun) progress() {
	p.listener.OnProgress(p.synced, p.pending)
}

// downloadPhase applies server documents until ready, returning the
// server's cursor version.
func (p *passRun) downloadPhase(ctx context.Context) (int64, error) {
	p.listener.OnStatus(syncpkg.EventDownloading, "")

	for {
		data, err := readTextMessage(ctx, p.conn)
		if err != nil {
			return 0, fmt.Errorf("reading server documents: %w", &apperrors.TransientError{Err: err})
		}

		switch op := gjson.GetBytes(data, "op").Str; op {
		case "ready":
			var ready readyMessage
			if err := json.Unmarshal(data, &ready); err != nil {
				return 0, fmt.Errorf("decoding ready message: %w", err)
			}

			return ready.Version, nil

		case "doc":
			var doc docMessage
			if err := json.Unmarshal(data, &doc); err != nil {
				p.client.logger.Warn("failed to decode document", slog.String("error", err.Error()))
				continue
			}

			if err := p.applyDoc(doc); err != nil {
				p.client.logger.Warn("skipping document",
					slog.String("path", doc.Path),
					slog.String("error", err.Error()),
				)

				continue
			}

			p.synced++
			p.progress()

		default:
			p.client.logger.Debug("unexpected message during download", slog.String("op", op))
		}
	}
}

// applyDoc writes or deletes one server document on disk and updates
// its file record.
func (p *passRun) applyDoc(doc docMessage) error {
	abs, err := resolvePath(p.params.RecipesDir, doc.Path)
	if err != nil {
		return err
	}

	if doc.Deleted {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", doc.Path, err)
		}

		if err := p.client.state.DeleteFile(p.params.NamespaceID, doc.Path); err != nil {
			return fmt.Errorf("clearing file record: %w", err)
		}

		p.client.logger.Info("server delete applied",
			slog.String("path", doc.Path),
			slog.String("device", doc.Device),
		)

		return nil
	}

	content, err := base64.StdEncoding.DecodeString(doc.Content)
	if err != nil {
		return fmt.Errorf("decoding content for %s: %w", doc.Path, err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", doc.Path, err)
	}

	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", doc.Path, err)
	}

	h := sha256.Sum256(content)
	record := state.FileRecord{
		Path:  doc.Path,
		Hash:  hex.EncodeToString(h[:]),
		MTime: doc.MTime,
		Size:  int64(len(content)),
	}

	if err := p.client.state.SetFile(p.params.NamespaceID, record); err != nil {
		return fmt.Errorf("persisting file record: %w", err)
	}

	p.client.logger.Info("server change written locally",
		slog.String("path", doc.Path),
		slog.String("device", doc.Device),
		slog.Int("bytes", len(content)),
	)

	return nil
}

// uploadPhase pushes local changes and deletions to the server.
func (p *passRun) uploadPhase(ctx context.Context, changed, deleted []string, local map[string]localEntry) error {
	if len(changed) == 0 && len(deleted) == 0 {
		return nil
	}

	p.listener.OnStatus(syncpkg.EventUploading, "")

	for _, path := range changed {
		entry := local[path]

		content, err := os.ReadFile(filepath.Join(p.params.RecipesDir, filepath.FromSlash(path)))
		if err != nil {
			// Deleted or unreadable since the scan; the next pass
			// picks it up.
			p.client.logger.Warn("skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
			p.pending--
			p.progress()

			continue
		}

		push := pushMessage{
			Op:      "push",
			Path:    path,
			Content: base64.StdEncoding.EncodeToString(content),
			Hash:    entry.hash,
			MTime:   entry.mtime,
		}

		if err := p.sendPush(ctx, push); err != nil {
			return err
		}

		record := state.FileRecord{Path: path, Hash: entry.hash, MTime: entry.mtime, Size: entry.size}
		if err := p.client.state.SetFile(p.params.NamespaceID, record); err != nil {
			return fmt.Errorf("persisting file record: %w", err)
		}

		p.client.logger.Info("local change pushed to server",
			slog.String("path", path),
			slog.Int("bytes", len(content)),
		)

		p.synced++
		p.pending--
		p.progress()
	}

	for _, path := range deleted {
		if err := p.sendPush(ctx, pushMessage{Op: "push", Path: path, Deleted: true}); err != nil {
			return err
		}

		if err := p.client.state.DeleteFile(p.params.NamespaceID, path); err != nil {
			return fmt.Errorf("clearing file record: %w", err)
		}

		p.client.logger.Info("local delete pushed to server", slog.String("path", path))

		p.synced++
		p.pending--
		p.progress()
	}

	return nil
}

// sendPush writes one push message and waits for the server's ack.
func (p *passRun) sendPush(ctx context.Context, push pushMessage) error {
	if err := writeJSON(ctx, p.conn, push); err != nil {
		return fmt.Errorf("sending push for %s: %w", push.Path, &apperrors.TransientError{Err: err})
	}

	data, err := readTextMessage(ctx, p.conn)
	if err != nil {
		return fmt.Errorf("reading push ack for %s: %w", push.Path, &apperrors.TransientError{Err: err})
	}

	var resp pushResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decoding push ack for %s: %w", push.Path, err)
	}

	if resp.Res != "ok" {
		msg := resp.Msg
		if msg == "" {
			msg = resp.Res
		}

		return fmt.Errorf("server rejected push for %s: %s", push.Path, msg)
	}

	return nil
}

func writeJSON(ctx context.Context, conn wsConn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return conn.Write(ctx, websocket.MessageText, data)
}

// readTextMessage reads the next text frame with a per-read timeout.
// Binary frames are ignored; this protocol is JSON-only.
func readTextMessage(ctx context.Context, conn wsConn) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, responseTimeout)
	defer cancel()

	for {
		typ, data, err := conn.Read(readCtx)
		if err != nil {
			return nil, err
		}

		if typ != websocket.MessageText {
			continue
		}

		return data, nil
	}
}

// localEntry is one file found during the local index scan.
type localEntry struct {
	hash  string
	mtime int64
	size  int64
}

// scanDir indexes the recipes directory, hashing every regular file.
// Hidden files and directories are skipped.
func scanDir(root string) (map[string]localEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: recipes directory: %v", apperrors.ErrInvalidConfiguration, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: recipes path %s is not a directory", apperrors.ErrInvalidConfiguration, root)
	}

	entries := make(map[string]localEntry)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		h := sha256.Sum256(content)
		entries[filepath.ToSlash(rel)] = localEntry{
			hash:  hex.EncodeToString(h[:]),
			mtime: fi.ModTime().UnixMilli(),
			size:  fi.Size(),
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing recipes directory: %w", err)
	}

	return entries, nil
}

// diffLocal compares the disk scan against the persisted records:
// changed paths need uploading, deleted paths need a server delete.
func diffLocal(local map[string]localEntry, known map[string]state.FileRecord) (changed, deleted []string) {
	for path, entry := range local {
		record, ok := known[path]
		if !ok || record.Hash != entry.hash {
			changed = append(changed, path)
		}
	}

	for path := range known {
		if _, ok := local[path]; !ok {
			deleted = append(deleted, path)
		}
	}

	// Map iteration order is random; keep uploads deterministic.
	sort.Strings(changed)
	sort.Strings(deleted)

	return changed, deleted
}

// resolvePath maps a server-supplied relative path onto the recipes
// directory, rejecting anything that would escape it.
func resolvePath(root, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty document path")
	}

	if strings.Contains(p, "\\") || filepath.IsAbs(p) {
		return "", fmt.Errorf("invalid document path %q", p)
	}

	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document path %q escapes the recipes directory", p)
	}

	return filepath.Join(root, clean), nil
}
