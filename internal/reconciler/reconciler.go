package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"garage-sentry-backend/internal/device"
	"garage-sentry-backend/internal/door"
)

// ErrStopped is returned by operations submitted after Run has returned.
var ErrStopped = errors.New("reconciler stopped")

// StateFetcher reads the device's closed fact.
type StateFetcher interface {
	FetchState(ctx context.Context) (device.Snapshot, error)
}

// CommandIssuer dispatches a door command without waiting for it.
type CommandIssuer interface {
	Issue(action door.Action)
}

// Reason tags why an Update was emitted.
type Reason string

const (
	ReasonObserved   Reason = "observed"
	ReasonCommanded  Reason = "commanded"
	ReasonConfirmed  Reason = "confirmed"
	ReasonObstructed Reason = "obstructed"
	ReasonUnresolved Reason = "unresolved"
)

// Update is pushed to listeners whenever current or target state changes.
type Update struct {
	Current door.DoorState   `json:"current_state"`
	Target  door.TargetState `json:"target_state"`
	Reason  Reason           `json:"reason"`
	At      time.Time        `json:"at"`

	// Requested is the abandoned target of an obstructed command.
	Requested door.TargetState `json:"-"`
}

// Listener receives updates on the reconciler goroutine and must not block.
type Listener interface {
	DoorStateChanged(u Update)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(u Update)

func (f ListenerFunc) DoorStateChanged(u Update) { f(u) }

// State is the reconciler's aggregate for a single door.
type State struct {
	Current          door.DoorState   `json:"current_state"`
	Target           door.TargetState `json:"target_state"`
	Operating        bool             `json:"operating"`
	LastKnownClosed  bool             `json:"last_known_closed"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	LastCommandError string           `json:"last_command_error,omitempty"`
}

// Options configures a Reconciler.
type Options struct {
	DoorTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Reconciler owns the door state. Every transition runs on the goroutine
// executing Run; device I/O happens elsewhere and its results are funneled
// back through the event queue.
type Reconciler struct {
	fetcher  StateFetcher
	commands CommandIssuer
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	events    chan func()
	done      chan struct{}
	runCtx    context.Context
	listeners []Listener

	// Owned by the Run goroutine.
	state      State
	generation uint64
	timer      *time.Timer

	mu        sync.RWMutex
	published State
}

// New creates a Reconciler. Call Initialize, then Run.
func New(fetcher StateFetcher, commands CommandIssuer, opts Options) *Reconciler {
	if opts.DoorTimeout <= 0 {
		opts.DoorTimeout = 6 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		fetcher:  fetcher,
		commands: commands,
		timeout:  opts.DoorTimeout,
		logger:   opts.Logger,
		now:      opts.Now,
		events:   make(chan func(), 16),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
	}
}

// AddListener registers l for updates. It must be called before Run.
func (r *Reconciler) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Initialize seeds the state from a fresh device poll, assuming the door is
// closed when the poll fails. It must be called before Run.
func (r *Reconciler) Initialize(ctx context.Context) State {
	closed := true
	snap, err := r.fetcher.FetchState(ctx)
	if err != nil {
		r.logger.Warn("initial device poll failed, assuming closed", zap.Error(err))
	} else {
		closed = snap.IsClosed
	}

	r.state = State{
		Current:         door.StateFromClosed(closed),
		Target:          door.TargetFromClosed(closed),
		LastKnownClosed: closed,
	}
	r.publish()
	r.logger.Info("initial door state",
		zap.Stringer("current", r.state.Current),
		zap.Stringer("target", r.state.Target))
	return r.Snapshot()
}

// Run processes events until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.runCtx = ctx
	defer close(r.done)
	defer r.stopTimer()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler shutting down")
			return
		case ev := <-r.events:
			ev()
			r.publish()
		}
	}
}

// Snapshot returns the last published state without blocking on the loop.
func (r *Reconciler) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published
}

// CurrentState returns the cached current door state.
func (r *Reconciler) CurrentState() door.DoorState {
	return r.Snapshot().Current
}

// TargetState returns the cached target state.
func (r *Reconciler) TargetState() door.TargetState {
	return r.Snapshot().Target
}

// Observe applies a poll result. last_known_closed is always refreshed; a
// change is surfaced only while no command is being confirmed.
func (r *Reconciler) Observe(ctx context.Context, snap device.Snapshot) error {
	return r.do(ctx, func() {
		r.applyObservation(snap.IsClosed)
	})
}

// SetTarget runs a fresh pre-check poll and, when the door is not already in
// the requested position, starts a command. It returns once the transition is
// applied; the command itself is dispatched asynchronously. A failed pre-check
// is acknowledged without changing state.
func (r *Reconciler) SetTarget(ctx context.Context, requested door.TargetState) error {
	snap, err := r.fetcher.FetchState(ctx)
	if err != nil {
		r.logger.Warn("pre-check poll failed, acknowledging without change",
			zap.Stringer("requested", requested), zap.Error(err))
		return nil
	}
	return r.do(ctx, func() {
		r.applyCommand(requested, snap.IsClosed)
	})
}

// CommandDispatched records the gateway's outcome for a dispatched command.
// It never changes door state; confirmation polling decides that.
func (r *Reconciler) CommandDispatched(action door.Action, err error) {
	r.enqueue(func() {
		if err != nil {
			r.state.LastCommandError = err.Error()
			return
		}
		r.state.LastCommandError = ""
	})
}

func (r *Reconciler) applyObservation(closed bool) {
	changed := closed != r.state.LastKnownClosed
	r.state.LastKnownClosed = closed
	if !changed {
		return
	}

	r.logger.Info("garage door state changed",
		zap.Stringer("state", door.StateFromClosed(closed)),
		zap.Bool("operating", r.state.Operating))
	if r.state.Operating {
		return
	}

	r.state.Current = door.StateFromClosed(closed)
	r.state.Target = door.TargetFromClosed(closed)
	r.notify(ReasonObserved, r.state.Target)
}

func (r *Reconciler) applyCommand(requested door.TargetState, closed bool) {
	if requested.SatisfiedBy(closed) {
		r.state.Target = requested
		if r.state.Operating {
			r.cancelConfirmation()
			r.state.Operating = false
			r.state.Current = door.StateFromClosed(closed)
			r.notify(ReasonCommanded, requested)
		}
		r.logger.Debug("door already in requested position", zap.Stringer("requested", requested))
		return
	}

	// A command is already in flight. The device only toggles, so another
	// command would reverse the door.
	if r.state.Operating {
		if requested == r.state.Target {
			r.logger.Info("restarting confirmation window for repeated request", zap.Stringer("requested", requested))
			r.armConfirmation()
			return
		}
		r.logger.Warn("door is moving, ignoring opposite request until it resolves",
			zap.Stringer("requested", requested), zap.Stringer("target", r.state.Target))
		return
	}

	r.state.Target = requested
	r.state.Current = requested.Transitional()
	r.state.Operating = true
	r.armConfirmation()
	r.commands.Issue(requested.Action())
	r.notify(ReasonCommanded, requested)
}

func (r *Reconciler) armConfirmation() {
	r.stopTimer()
	r.generation++
	gen := r.generation
	deadline := r.now().Add(r.timeout)
	r.state.Deadline = &deadline
	r.timer = time.AfterFunc(r.timeout, func() {
		r.enqueue(func() { r.confirmationDue(gen) })
	})
}

func (r *Reconciler) cancelConfirmation() {
	r.stopTimer()
	r.generation++
	r.state.Deadline = nil
}

func (r *Reconciler) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) confirmationDue(gen uint64) {
	if gen != r.generation || !r.state.Operating {
		return
	}
	ctx := r.runCtx
	go func() {
		snap, err := r.fetcher.FetchState(ctx)
		r.enqueue(func() { r.resolveConfirmation(gen, snap, err) })
	}()
}

func (r *Reconciler) resolveConfirmation(gen uint64, snap device.Snapshot, err error) {
	if gen != r.generation || !r.state.Operating {
		return
	}
	r.state.Operating = false
	r.state.Deadline = nil
	r.timer = nil
	requested := r.state.Target

	if err != nil {
		r.logger.Warn("confirmation poll failed, outcome unknown",
			zap.Stringer("target", requested), zap.Error(err))
		r.notify(ReasonUnresolved, requested)
		return
	}

	if requested.SatisfiedBy(snap.IsClosed) {
		r.state.Current = requested.Terminal()
		r.notify(ReasonConfirmed, requested)
		return
	}

	actual := "Open"
	if snap.IsClosed {
		actual = "Closed"
	}
	r.logger.Sugar().Warnf("Trying to %s the Garage Door, but it's still %s", requested.Action(), actual)
	r.state.Current = door.StateStopped
	r.state.Target = door.TargetFromClosed(snap.IsClosed)
	r.notify(ReasonObstructed, requested)
}

func (r *Reconciler) notify(reason Reason, requested door.TargetState) {
	u := Update{
		Current:   r.state.Current,
		Target:    r.state.Target,
		Reason:    reason,
		At:        r.now().UTC(),
		Requested: requested,
	}
	for _, l := range r.listeners {
		l.DoorStateChanged(u)
	}
}

func (r *Reconciler) publish() {
	r.mu.Lock()
	r.published = r.state
	r.mu.Unlock()
}

// do runs fn on the loop and waits until it has been applied.
func (r *Reconciler) do(ctx context.Context, fn func()) error {
	applied := make(chan struct{})
	select {
	case r.events <- func() { fn(); r.publish(); close(applied) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}

	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

// enqueue submits fn without waiting. It reports false once Run has returned.
func (r *Reconciler) enqueue(fn func()) bool {
	select {
	case r.events <- fn:
		return true
	case <-r.done:
		return false
	}
}
