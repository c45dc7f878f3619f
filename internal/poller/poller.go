package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"garage-sentry-backend/internal/device"
)

// StateFetcher reads the device's closed fact.
type StateFetcher interface {
	FetchState(ctx context.Context) (device.Snapshot, error)
}

// Observer receives every successful poll result.
type Observer interface {
	Observe(ctx context.Context, snap device.Snapshot) error
}

// Poller reads the device on a fixed interval, independent of any command in
// flight, so manual door operation is still picked up.
type Poller struct {
	fetcher  StateFetcher
	observer Observer
	interval time.Duration
	logger   *zap.Logger
}

// New creates a poller.
func New(fetcher StateFetcher, observer Observer, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		observer: observer,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. The first tick fires one interval after
// start; the interval is unaffected by failures.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("starting poller", zap.Duration("interval", p.interval))

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller shutting down")
			return
		case <-timer.C:
			p.PollOnce(ctx)
			timer.Reset(p.interval)
		}
	}
}

// PollOnce performs a single poll. A failed read is logged and skipped, so
// the observer keeps its previous value.
func (p *Poller) PollOnce(ctx context.Context) {
	snap, err := p.fetcher.FetchState(ctx)
	if err != nil {
		p.logger.Warn("poll failed, keeping last known state", zap.Error(err))
		return
	}

	if err := p.observer.Observe(ctx, snap); err != nil && ctx.Err() == nil {
		p.logger.Error("failed to forward poll result", zap.Error(err))
	}
}
