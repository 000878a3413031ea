// Package state persists sync bookkeeping in a local bbolt database:
// the per-namespace server cursor, the last-sync record and the hash of
// every file as it was last synchronized.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.recipe-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	// A second agent process holding the lock fails fast instead of hanging.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket     = []byte("app")
	syncRecordKey = []byte("last_sync")
)

func namespaceMetaBucket(namespaceID string) []byte {
	return []byte("namespace:" + namespaceID + ":meta")
}

func namespaceFilesBucket(namespaceID string) []byte {
	return []byte("namespace:" + namespaceID + ":files")
}

// Cursor is the server-side sync position for a namespace. Initial is
// true until the first pass completes, telling the server to send the
// full document set.
type Cursor struct {
	Version int64 `json:"version"`
	Initial bool  `json:"initial"`
}

// FileRecord tracks a local file as it was last synchronized. The hash
// is over the file content; a disk file whose hash differs needs
// uploading, a record with no disk file behind it marks a deletion.
type FileRecord struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	MTime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// SyncRecord describes the last successful sync pass.
type SyncRecord struct {
	CompletedAt  time.Time `json:"completed_at"`
	ItemsSynced  int       `json:"items_synced"`
	ItemsPending int       `json:"items_pending"`
}

// State wraps a bbolt database for all persistent sync bookkeeping.
type State struct {
	db   *bolt.DB
	path string
}

// Load opens the state database at ~/.recipe-sync/agent.db, creating it
// if it does not exist. The app bucket is created on open.
func Load() (*State, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, path: path}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database.
func (s *State) Path() string {
	return s.path
}

// LastSync returns the record of the last successful pass, or nil if no
// pass has completed yet.
func (s *State) LastSync() (*SyncRecord, error) {
	var record *SyncRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(syncRecordKey)
		if v == nil {
			return nil
		}

		record = &SyncRecord{}

		return json.Unmarshal(v, record)
	})

	return record, err
}

// SetLastSync persists the record of a successful pass.
func (s *State) SetLastSync(record SyncRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		return tx.Bucket(appBucket).Put(syncRecordKey, data)
	})
}

// GetCursor returns the sync cursor for a namespace, defaulting to
// initial sync.
func (s *State) GetCursor(namespaceID string) (Cursor, error) {
	cursor := Cursor{Version: 0, Initial: true}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceMetaBucket(namespaceID))
		if b == nil {
			return nil
		}

		v := b.Get([]byte("cursor"))
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &cursor)
	})

	return cursor, err
}

// SetCursor updates the sync cursor for a namespace.
func (s *State) SetCursor(namespaceID string, cursor Cursor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(namespaceMetaBucket(namespaceID))
		if err != nil {
			return err
		}

		data, err := json.Marshal(cursor)
		if err != nil {
			return err
		}

		return b.Put([]byte("cursor"), data)
	})
}

// InitNamespace ensures the file bucket exists for the given namespace.
// Call this once after the session identifies the namespace.
func (s *State) InitNamespace(namespaceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(namespaceFilesBucket(namespaceID))

		return err
	})
}

// GetFile returns the sync record for a path, or nil if not found.
func (s *State) GetFile(namespaceID, path string) (*FileRecord, error) {
	var record *FileRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceFilesBucket(namespaceID))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(path))
		if v == nil {
			return nil
		}

		record = &FileRecord{}

		return json.Unmarshal(v, record)
	})

	return record, err
}

// SetFile persists the sync record for a path.
func (s *State) SetFile(namespaceID string, record FileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceFilesBucket(namespaceID))
		if b == nil {
			return fmt.Errorf("file bucket not initialized for namespace %s", namespaceID)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		return b.Put([]byte(record.Path), data)
	})
}

// DeleteFile removes the sync record for a path.
func (s *State) DeleteFile(namespaceID, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceFilesBucket(namespaceID))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(path))
	})
}

// AllFiles returns all file sync records for a namespace.
func (s *State) AllFiles(namespaceID string) (map[string]FileRecord, error) {
	result := make(map[string]FileRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceFilesBucket(namespaceID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var record FileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}

			result[string(k)] = record

			return nil
		})
	})

	return result, err
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database might end up with wrong permissions or inside
		// a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".recipe-sync", "agent.db")
}
