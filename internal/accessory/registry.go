package accessory

import (
	"context"
	"time"

	"garage-sentry-backend/internal/model"
	"garage-sentry-backend/internal/reconciler"
)

const registryWriteTimeout = 5 * time.Second

// Registry persists the accessory record and its latest state.
type Registry interface {
	UpsertAccessory(ctx context.Context, acc model.Accessory) error
	UpdateAccessoryState(ctx context.Context, serial, current, target string, at time.Time) error
}

// Register writes the accessory record seeded with the initial state.
func Register(ctx context.Context, reg Registry, info Info, state reconciler.State) error {
	return reg.UpsertAccessory(ctx, model.Accessory{
		SerialNumber: info.SerialNumber,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		CurrentState: state.Current.String(),
		TargetState:  state.Target.String(),
		LastSeenAt:   time.Now().UTC(),
	})
}

// RegistryPublisher keeps the registry row in step with characteristic updates.
type RegistryPublisher struct {
	reg    Registry
	serial string
}

// NewRegistryPublisher creates a publisher for the accessory with serial.
func NewRegistryPublisher(reg Registry, serial string) *RegistryPublisher {
	return &RegistryPublisher{reg: reg, serial: serial}
}

// PublishUpdate overwrites the stored state with u.
func (p *RegistryPublisher) PublishUpdate(u reconciler.Update) error {
	ctx, cancel := context.WithTimeout(context.Background(), registryWriteTimeout)
	defer cancel()
	return p.reg.UpdateAccessoryState(ctx, p.serial, u.Current.String(), u.Target.String(), u.At)
}
