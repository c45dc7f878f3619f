package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"garage-sentry-backend/internal/accessory"
	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/reconciler"
	"garage-sentry-backend/internal/store"
)

// Accessory is the characteristic surface the handlers expose.
type Accessory interface {
	Info() accessory.Info
	State() reconciler.State
	SetTargetState(ctx context.Context, requested door.TargetState)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	accessory Accessory
	store     store.Store
	webpush   *webpush.Options
	hub       *Hub
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(acc Accessory, s store.Store, webpushOptions *webpush.Options, hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accessory: acc,
		store:     s,
		webpush:   webpushOptions,
		hub:       hub,
		logger:    logger,
	}
}
