package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/reconciler"
)

// Broker is the subset of Client the bridge uses.
type Broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// TargetSetter accepts target state requests.
type TargetSetter interface {
	SetTargetState(ctx context.Context, requested door.TargetState)
}

// Bridge exposes the door's characteristics over MQTT.
type Bridge struct {
	broker Broker
	topics Topics
	target TargetSetter
	logger *zap.Logger
}

// NewBridge creates a bridge publishing through broker.
func NewBridge(broker Broker, topics Topics, target TargetSetter, logger *zap.Logger) *Bridge {
	return &Bridge{broker: broker, topics: topics, target: target, logger: logger}
}

// Start subscribes to target requests. Requests run with ctx.
func (b *Bridge) Start(ctx context.Context) error {
	return b.broker.Subscribe(b.topics.TargetSet(), func(topic string, payload []byte) error {
		requested, err := ParseTargetPayload(payload)
		if err != nil {
			return err
		}
		b.logger.Info("mqtt target request", zap.String("topic", topic), zap.Stringer("target", requested))
		b.target.SetTargetState(ctx, requested)
		return nil
	})
}

// PublishUpdate publishes u as retained JSON on the state topic.
func (b *Bridge) PublishUpdate(u reconciler.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.broker.Publish(b.topics.State(), payload, true)
}

// ParseTargetPayload accepts a bare OPEN/CLOSED value, optionally JSON quoted.
func ParseTargetPayload(payload []byte) (door.TargetState, error) {
	s := strings.Trim(strings.TrimSpace(string(payload)), `"`)
	t, err := door.ParseTarget(s)
	if err != nil {
		return 0, fmt.Errorf("invalid target payload: %w", err)
	}
	return t, nil
}
