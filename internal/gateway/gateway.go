package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
)

// queueSize bounds the number of commands waiting for the worker.
const queueSize = 4

// CommandSender delivers a command to the device.
type CommandSender interface {
	SendCommand(ctx context.Context, action door.Action) error
}

// Reporter is told the outcome of each dispatched command.
type Reporter interface {
	CommandDispatched(action door.Action, err error)
}

// Gateway serializes outgoing commands through a single worker. It never
// interprets door semantics.
type Gateway struct {
	sender   CommandSender
	logger   *zap.Logger
	jobs     chan door.Action
	reporter Reporter
	mu       sync.RWMutex
}

// New creates a gateway. Call Start before issuing commands.
func New(sender CommandSender, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		sender: sender,
		logger: logger,
		jobs:   make(chan door.Action, queueSize),
	}
}

// SetReporter registers the outcome receiver.
func (g *Gateway) SetReporter(r Reporter) {
	g.mu.Lock()
	g.reporter = r
	g.mu.Unlock()
}

// Start launches the worker goroutine.
func (g *Gateway) Start(ctx context.Context) {
	go g.worker(ctx)
}

// Issue queues a command and returns immediately. A full queue drops the
// command; the reconciler's confirmation poll will report the door as stalled.
func (g *Gateway) Issue(action door.Action) {
	select {
	case g.jobs <- action:
	default:
		g.logger.Error("command queue full, dropping command", zap.String("action", string(action)))
	}
}

// Jobs returns the jobs channel for testing.
func (g *Gateway) Jobs() chan door.Action {
	return g.jobs
}

func (g *Gateway) worker(ctx context.Context) {
	g.logger.Info("command gateway started")
	for {
		select {
		case action := <-g.jobs:
			g.dispatch(ctx, action)
		case <-ctx.Done():
			g.logger.Info("command gateway shutting down")
			return
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, action door.Action) {
	g.logger.Info("sending door command", zap.String("action", string(action)))
	err := g.sender.SendCommand(ctx, action)
	if err != nil {
		g.logger.Error("door command failed", zap.String("action", string(action)), zap.Error(err))
	}

	g.mu.RLock()
	reporter := g.reporter
	g.mu.RUnlock()
	if reporter != nil {
		reporter.CommandDispatched(action, err)
	}
}
