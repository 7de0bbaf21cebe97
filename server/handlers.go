// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"log/slog"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
)

// Aggregator is the part of chat.Aggregator the handlers use.
type Aggregator interface {
	Status() []chat.AdapterStatus
	Loaded() bool
	Snapshot() chat.Snapshot
	Reload(ctx context.Context, src chat.SnapshotSource) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx   context.Context
	log   *slog.Logger
	agg   Aggregator
	bus   *chat.Bus
	store config.Store
	hub   *Hub
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// ctx bounds long-lived streams so they end on shutdown.
func NewHandlers(ctx context.Context, agg Aggregator, bus *chat.Bus, store config.Store, hub *Hub, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		ctx:   ctx,
		log:   log,
		agg:   agg,
		bus:   bus,
		store: store,
		hub:   hub,
	}
}
