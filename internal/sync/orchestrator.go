// Package sync owns the supervised synchronization loop and its
// observable status.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
	"github.com/alexjbarnes/recipe-sync/internal/session"
)

// stopGrace is how long Stop waits for the loop to wind down before
// giving up with a warning.
const stopGrace = 30 * time.Second

// Credentials is the slice of the auth manager the orchestrator needs.
type Credentials interface {
	IsAuthenticated() bool
	CurrentSession() *session.Session
	Logout() error
}

// Config holds dependencies and settings for the orchestrator.
type Config struct {
	Credentials Credentials
	Engine      Engine

	RecipesDir   string
	StateDBPath  string
	Endpoint     string
	Device       string
	DownloadOnly bool

	// Interval is the pause between periodic passes.
	Interval time.Duration

	// Policy defaults to DefaultPolicy when zero.
	Policy Policy

	// OnSuccess, if set, is called with a status snapshot after every
	// successful pass. Used to persist last-sync bookkeeping.
	OnSuccess func(Snapshot)

	Logger *slog.Logger
}

// Orchestrator drives the sync loop: one pass immediately on start,
// then one per interval tick or trigger, each wrapped in a bounded
// retry with exponential backoff. At most one pass is in flight at any
// time.
type Orchestrator struct {
	creds     Credentials
	engine    Engine
	state     *State
	bridge    *Bridge
	logger    *slog.Logger
	policy    Policy
	interval  time.Duration
	params    PassParams
	onSuccess func(Snapshot)

	// trigger nudges the loop into an immediate cycle, e.g. when the
	// watcher sees local changes. Buffered so nudges never block.
	trigger chan struct{}

	mu          stdsync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	failures    int
	lastSuccess time.Time
}

// New creates an orchestrator. The loop does not run until Start.
func New(cfg Config) *Orchestrator {
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	state := NewState()

	return &Orchestrator{
		creds:    cfg.Credentials,
		engine:   cfg.Engine,
		state:    state,
		bridge:   NewBridge(state, cfg.Logger),
		logger:   cfg.Logger,
		policy:   cfg.Policy,
		interval: cfg.Interval,
		params: PassParams{
			RecipesDir:   cfg.RecipesDir,
			StateDBPath:  cfg.StateDBPath,
			Endpoint:     cfg.Endpoint,
			Device:       cfg.Device,
			DownloadOnly: cfg.DownloadOnly,
		},
		onSuccess: cfg.OnSuccess,
		trigger:   make(chan struct{}, 1),
	}
}

// State returns the shared status state for read-only observation.
func (o *Orchestrator) State() *State {
	return o.state
}

// Start validates preconditions and spawns the supervised loop. It
// fails without starting anything when the user is not authenticated or
// no recipes directory is configured.
func (o *Orchestrator) Start() error {
	if !o.creds.IsAuthenticated() {
		return apperrors.ErrAuthenticationRequired
	}

	if o.params.RecipesDir == "" {
		return fmt.Errorf("%w: recipes directory not configured", apperrors.ErrInvalidConfiguration)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return fmt.Errorf("sync loop already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.failures = 0
	o.lastSuccess = time.Now()

	go func() {
		defer close(done)
		o.run(ctx)
	}()

	o.logger.Info("sync loop started", slog.Duration("interval", o.interval))

	return nil
}

// run executes one cycle immediately, then one per tick or trigger,
// until the context is cancelled.
func (o *Orchestrator) run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		o.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.trigger:
		}
	}
}

// cycle runs one sync pass with the retry sub-loop. It skips entirely
// while paused or unauthenticated.
func (o *Orchestrator) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if o.state.Snapshot().Status == StatusPaused {
		o.logger.Debug("sync paused, skipping cycle")
		return
	}

	if !o.creds.IsAuthenticated() {
		o.logger.Debug("not authenticated, skipping cycle")
		return
	}

	o.maybeResetStaleFailures()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := o.runPass(ctx)
		if err == nil {
			o.mu.Lock()
			o.failures = 0
			o.lastSuccess = time.Now()
			o.mu.Unlock()

			if o.onSuccess != nil {
				o.onSuccess(o.state.Snapshot())
			}

			return
		}

		// A pass abandoned by shutdown is not a failure.
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, apperrors.ErrAuthenticationRequired) {
			o.logger.Error("sync pass rejected, logging out", slog.String("error", err.Error()))
			o.state.SetError("Authentication required")

			if lerr := o.creds.Logout(); lerr != nil {
				o.logger.Error("logout after rejected pass failed", slog.String("error", lerr.Error()))
			}

			o.recordFailure()

			return
		}

		if errors.Is(err, apperrors.ErrInvalidConfiguration) {
			o.logger.Error("sync pass failed", slog.String("error", err.Error()))
			o.state.SetError(err.Error())
			o.recordFailure()

			return
		}

		if attempt >= o.policy.MaxRetries {
			o.logger.Error("sync failed after retries",
				slog.Int("retries", o.policy.MaxRetries),
				slog.String("error", err.Error()),
			)
			o.state.SetError(fmt.Sprintf("Sync failed after %d retries: %v", o.policy.MaxRetries, err))
			o.recordFailure()

			return
		}

		if apperrors.IsTransient(err) {
			o.state.SetOffline()
		}

		delay := o.policy.DelayFor(attempt)
		o.logger.Warn("sync pass failed, retrying",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// maybeResetStaleFailures clears failure state when more than twice the
// maximum backoff has elapsed since the last success. This recovers
// automatically from long idle periods such as machine sleep.
func (o *Orchestrator) maybeResetStaleFailures() {
	staleAfter := 2 * o.policy.MaxDelay

	o.mu.Lock()
	failures := o.failures
	since := time.Since(o.lastSuccess)
	stale := failures > 0 && since > staleAfter
	if stale {
		o.failures = 0
	}
	o.mu.Unlock()

	if stale {
		o.logger.Info("resetting stale failure state",
			slog.Int("failures", failures),
			slog.Duration("since_last_success", since),
		)
		o.state.ClearError()
	}
}

func (o *Orchestrator) recordFailure() {
	o.mu.Lock()
	o.failures++
	o.mu.Unlock()
}

// runPass invokes the engine once with a child cancellation scope and
// the current session's credentials.
func (o *Orchestrator) runPass(ctx context.Context) error {
	sess := o.creds.CurrentSession()
	if sess == nil {
		return apperrors.ErrAuthenticationRequired
	}

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.state.SetSyncing()

	params := o.params
	params.Token = sess.RawToken
	params.NamespaceID = sess.UserID

	return o.engine.RunOnce(passCtx, o.bridge, params)
}

// Pause forces Paused. An in-flight pass is not interrupted; the loop
// simply starts no new passes.
func (o *Orchestrator) Pause() {
	o.logger.Info("sync paused")
	o.state.Pause()
}

// Resume returns Paused or Error to Idle.
func (o *Orchestrator) Resume() {
	o.logger.Info("sync resumed")
	o.state.Resume()
}

// TriggerSync nudges the loop into an immediate cycle. Never blocks; a
// nudge while one is already pending is a no-op.
func (o *Orchestrator) TriggerSync() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// IsRunning reports whether the loop is operating (Syncing, Idle or
// Offline). Paused, Error and Starting all count as not running.
func (o *Orchestrator) IsRunning() bool {
	switch o.state.Snapshot().Status {
	case StatusSyncing, StatusIdle, StatusOffline:
		return true
	}

	return false
}

// Stop cancels the loop and waits up to the grace period for it to
// finish, logging a warning if it does not. The status always resets to
// Idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}

	o.logger.Info("stopping sync loop")
	cancel()

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		o.logger.Warn("sync loop did not stop within grace period", slog.Duration("grace", stopGrace))
	}

	o.state.resetIdle()
	o.logger.Info("sync loop stopped")
}
