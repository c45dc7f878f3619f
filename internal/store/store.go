package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"garage-sentry-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertAccessory(ctx context.Context, acc model.Accessory) error
	UpdateAccessoryState(ctx context.Context, serial, current, target string, at time.Time) error
	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertAccessory registers the accessory, refreshing its descriptive fields
// if it already exists.
func (s *gormStore) UpsertAccessory(ctx context.Context, acc model.Accessory) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "manufacturer", "model", "current_state", "target_state", "last_seen_at", "updated_at"}),
	}).Create(&acc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert accessory %s: %w", acc.SerialNumber, err)
	}
	return nil
}

// UpdateAccessoryState overwrites the latest known state of the accessory.
func (s *gormStore) UpdateAccessoryState(ctx context.Context, serial, current, target string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.Accessory{}).
		Where("serial_number = ?", serial).
		Updates(map[string]any{
			"current_state": current,
			"target_state":  target,
			"last_seen_at":  at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update accessory %s: %w", serial, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("accessory %s: %w", serial, ErrNotFound)
	}
	return nil
}

// SaveSubscription creates or replaces a push subscription.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the subscription for endpoint or ErrNotFound.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns every stored subscription.
func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// DeleteSubscription removes the subscription for endpoint.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
