// Package secrets abstracts OS-level secret persistence so the rest of
// the agent can be tested without touching a real keychain.
package secrets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// Store is the capability interface over secret storage. Entries are
// addressed by service name and key.
//
// Get reports absence through its second return value rather than an
// error. Delete is idempotent: deleting an absent key succeeds.
type Store interface {
	Get(service, key string) (value string, found bool, err error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// Keyring is the production Store backed by the platform keychain
// (Secret Service on Linux, Keychain on macOS, Credential Manager on
// Windows).
type Keyring struct{}

var _ Store = Keyring{}

func (Keyring) Get(service, key string) (string, bool, error) {
	value, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading secret %s/%s: %w", service, key, err)
	}

	return value, true, nil
}

func (Keyring) Set(service, key, value string) error {
	if err := keyring.Set(service, key, value); err != nil {
		return fmt.Errorf("writing secret %s/%s: %w", service, key, err)
	}

	return nil
}

func (Keyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting secret %s/%s: %w", service, key, err)
	}

	return nil
}

// Memory is a deterministic in-memory Store for tests. Safe for
// concurrent use.
type Memory struct {
	mu    sync.Mutex
	items map[[2]string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[[2]string]string)}
}

func (m *Memory) Get(service, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, found := m.items[[2]string{service, key}]

	return value, found, nil
}

func (m *Memory) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[[2]string{service, key}] = value

	return nil
}

func (m *Memory) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, [2]string{service, key})

	return nil
}
