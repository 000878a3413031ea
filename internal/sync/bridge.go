package sync

import "log/slog"

// Bridge adapts engine progress events onto State transitions. All of
// the in-flight activity events collapse to Syncing; Idle and a
// successful completion map to Idle; errors carry their message.
type Bridge struct {
	state  *State
	logger *slog.Logger
}

var _ Listener = (*Bridge)(nil)

// NewBridge creates a bridge writing into the given state.
func NewBridge(state *State, logger *slog.Logger) *Bridge {
	return &Bridge{state: state, logger: logger}
}

func (b *Bridge) OnStatus(event Event, message string) {
	switch event {
	case EventIdle:
		b.logger.Debug("engine status", slog.String("event", event.String()))
		b.state.SetIdle()
	case EventSyncing, EventIndexing, EventDownloading, EventUploading:
		b.logger.Debug("engine status", slog.String("event", event.String()))
		b.state.SetSyncing()
	case EventError:
		b.logger.Error("engine status", slog.String("event", event.String()), slog.String("message", message))
		b.state.SetError(message)
	}
}

func (b *Bridge) OnProgress(synced, pending int) {
	b.state.SetCounts(synced, pending)
}

func (b *Bridge) OnComplete(success bool, message string) {
	if success {
		b.logger.Info("sync pass completed")
		b.state.SetIdle()

		return
	}

	if message == "" {
		message = "sync failed"
	}

	b.logger.Warn("sync pass failed", slog.String("message", message))
	b.state.SetError(message)
}
