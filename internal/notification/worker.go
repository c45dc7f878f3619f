package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/model"
	"garage-sentry-backend/internal/reconciler"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the slice of the store the workers need.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Alert describes a command that the door did not carry out.
type Alert struct {
	Name      string
	Requested door.TargetState
	Closed    bool
}

// Message renders the alert text sent to every subscriber.
func (a Alert) Message() string {
	still := "Open"
	if a.Closed {
		still = "Closed"
	}
	return fmt.Sprintf("%s is obstructed: tried to %s, still %s", a.Name, a.Requested.Action(), still)
}

// WorkerPool manages a pool of workers for sending obstruction alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, store SubscriptionStore, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			wp.logger.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues an alert. It never blocks; alerts beyond the queue
// capacity are dropped.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		wp.logger.Warn("notification queue full, dropping alert", zap.String("message", alert.Message()))
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// Listener returns a reconciler listener that dispatches an alert for every
// obstructed update of the door called name.
func (wp *WorkerPool) Listener(name string) reconciler.Listener {
	return reconciler.ListenerFunc(func(u reconciler.Update) {
		if u.Reason != reconciler.ReasonObstructed {
			return
		}
		wp.Dispatch(Alert{
			Name:      name,
			Requested: u.Requested,
			Closed:    u.Target == door.TargetClosed,
		})
	})
}

func (wp *WorkerPool) sendAlert(ctx context.Context, alert Alert) {
	subscriptions, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		wp.logger.Error("failed to load subscriptions", zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	message := alert.Message()
	wp.logger.Info("sending obstruction alert",
		zap.Int("subscriptions", len(subscriptions)),
		zap.String("message", message))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
