package accessory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/reconciler"
)

const (
	// updateBuffer bounds updates waiting for slow publishers.
	updateBuffer = 32

	// setTargetTimeout bounds a target request once detached from its caller.
	setTargetTimeout = 30 * time.Second
)

// Controller is the reconciler surface the adapter drives.
type Controller interface {
	Snapshot() reconciler.State
	CurrentState() door.DoorState
	TargetState() door.TargetState
	SetTarget(ctx context.Context, requested door.TargetState) error
}

// Publisher forwards characteristic updates to a client-facing channel.
type Publisher interface {
	PublishUpdate(u reconciler.Update) error
}

// Adapter translates between the reconciler and the characteristic get/set
// surfaces (HTTP, MQTT). Reads are served from the reconciler's cache.
type Adapter struct {
	ctrl   Controller
	info   Info
	logger *zap.Logger

	updates    chan reconciler.Update
	mu         sync.RWMutex
	publishers []Publisher
}

// New creates an adapter for ctrl.
func New(ctrl Controller, info Info, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		ctrl:    ctrl,
		info:    info,
		logger:  logger,
		updates: make(chan reconciler.Update, updateBuffer),
	}
}

// Info returns the accessory information.
func (a *Adapter) Info() Info {
	return a.info
}

// AddPublisher registers p for characteristic updates.
func (a *Adapter) AddPublisher(p Publisher) {
	a.mu.Lock()
	a.publishers = append(a.publishers, p)
	a.mu.Unlock()
}

// GetCurrentState returns the cached current door state.
func (a *Adapter) GetCurrentState() door.DoorState {
	return a.ctrl.CurrentState()
}

// GetTargetState returns the cached target state.
func (a *Adapter) GetTargetState() door.TargetState {
	return a.ctrl.TargetState()
}

// State returns the full cached reconciler state.
func (a *Adapter) State() reconciler.State {
	return a.ctrl.Snapshot()
}

// SetTargetState forwards a target request. It always acknowledges; failures
// are only visible later through the current state.
//
// The request runs detached from ctx's cancellation, so a client that hangs
// up during the pre-check poll does not abort it.
func (a *Adapter) SetTargetState(ctx context.Context, requested door.TargetState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setTargetTimeout)
	defer cancel()

	a.logger.Info("target state requested", zap.Stringer("target", requested))
	if err := a.ctrl.SetTarget(ctx, requested); err != nil {
		a.logger.Warn("target request not applied", zap.Stringer("target", requested), zap.Error(err))
	}
}

// DoorStateChanged queues u for the publishers. It runs on the reconciler
// goroutine, so it never blocks; updates are dropped when publishers lag.
func (a *Adapter) DoorStateChanged(u reconciler.Update) {
	select {
	case a.updates <- u:
	default:
		a.logger.Warn("update buffer full, dropping characteristic update",
			zap.Stringer("current", u.Current), zap.Stringer("target", u.Target))
	}
}

// Run delivers queued updates to publishers in order until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	for {
		select {
		case u := <-a.updates:
			a.forward(u)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Adapter) forward(u reconciler.Update) {
	a.mu.RLock()
	publishers := append([]Publisher(nil), a.publishers...)
	a.mu.RUnlock()

	for _, p := range publishers {
		if err := p.PublishUpdate(u); err != nil {
			a.logger.Warn("failed to publish characteristic update", zap.Error(err))
		}
	}
}
