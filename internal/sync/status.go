package sync

import (
	"sync"
	"time"
)

// Status is the observable run state of the sync loop.
type Status int

const (
	StatusStarting Status = iota
	StatusSyncing
	StatusIdle
	StatusPaused
	StatusError
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "Starting"
	case StatusSyncing:
		return "Syncing"
	case StatusIdle:
		return "Up to date"
	case StatusPaused:
		return "Paused"
	case StatusError:
		return "Error"
	case StatusOffline:
		return "Offline"
	}

	return "Unknown"
}

// offlineMessage is the fixed error text for the Offline status.
const offlineMessage = "No internet connection"

// State is the shared, lock-guarded sync status. Readers always see a
// consistent snapshot; an error message is present exactly when the
// status is Error or Offline.
type State struct {
	mu           sync.Mutex
	status       Status
	lastSync     time.Time
	errorMessage string
	itemsSynced  int
	itemsPending int
}

// NewState creates a State in the Starting status.
func NewState() *State {
	return &State{status: StatusStarting}
}

// Snapshot is a point-in-time copy of the state, safe to read at any
// time without blocking writers.
type Snapshot struct {
	Status       Status
	LastSync     time.Time
	ErrorMessage string
	ItemsSynced  int
	ItemsPending int
}

// Snapshot returns a consistent copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Status:       s.status,
		LastSync:     s.lastSync,
		ErrorMessage: s.errorMessage,
		ItemsSynced:  s.itemsSynced,
		ItemsPending: s.itemsPending,
	}
}

// SetSyncing marks a pass in progress and clears any error.
func (s *State) SetSyncing() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusSyncing
	s.errorMessage = ""
}

// SetIdle marks a successful pass: stamps the last sync time and clears
// any error.
func (s *State) SetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusIdle
	s.lastSync = time.Now()
	s.errorMessage = ""
}

// SetError records a failure with a human-readable message.
func (s *State) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusError
	s.errorMessage = message
}

// SetOffline records a transport-level failure with the fixed offline
// message, so callers can distinguish "check your connection" from
// "something is misconfigured".
func (s *State) SetOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusOffline
	s.errorMessage = offlineMessage
}

// ClearError transitions Error back to Idle. No-op in any other status.
func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusError {
		s.status = StatusIdle
		s.errorMessage = ""
	}
}

// Pause forces the Paused status regardless of the current one.
func (s *State) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusPaused
	s.errorMessage = ""
}

// Resume returns Paused or Error to Idle, clearing any error message.
func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusPaused || s.status == StatusError {
		s.status = StatusIdle
		s.errorMessage = ""
	}
}

// SetCounts updates the per-pass progress counters.
func (s *State) SetCounts(synced, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.itemsSynced = synced
	s.itemsPending = pending
}

// resetIdle forces Idle without stamping the last sync time. Used on
// shutdown so the final status never reads as a failure.
func (s *State) resetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusIdle
	s.errorMessage = ""
}
