package sync

import "context"

// Event is a progress event emitted by the sync engine during a pass.
type Event int

const (
	EventIdle Event = iota
	EventSyncing
	EventIndexing
	EventDownloading
	EventUploading
	EventError
)

func (e Event) String() string {
	switch e {
	case EventIdle:
		return "idle"
	case EventSyncing:
		return "syncing"
	case EventIndexing:
		return "indexing"
	case EventDownloading:
		return "downloading"
	case EventUploading:
		return "uploading"
	case EventError:
		return "error"
	}

	return "unknown"
}

// Listener receives engine progress during a pass. Implementations must
// be safe to call from the engine's goroutine.
type Listener interface {
	// OnStatus reports a status change. The message is only meaningful
	// for EventError.
	OnStatus(event Event, message string)

	// OnProgress reports cumulative counters for the current pass.
	OnProgress(synced, pending int)

	// OnComplete reports the terminal outcome of the pass.
	OnComplete(success bool, message string)
}

// PassParams carries everything the engine needs for one pass.
type PassParams struct {
	RecipesDir   string
	StateDBPath  string
	Endpoint     string
	Token        string
	NamespaceID  string
	Device       string
	DownloadOnly bool
}

// Engine runs one synchronization pass against the remote service. The
// context is a child of the orchestrator's cancellation scope; when it
// is cancelled the engine must abandon the pass promptly.
//
// Errors are classified by the orchestrator: apperrors.
// ErrAuthenticationRequired is fatal and triggers a logout, transient
// errors back off and retry, everything else retries as a generic
// failure.
type Engine interface {
	RunOnce(ctx context.Context, listener Listener, params PassParams) error
}
