// Package agent glues the engine together: recovery on startup, then
// role-based loops until shutdown.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/session"
)

// CurrentRideFetcher is the recovery slice of the backend client.
type CurrentRideFetcher interface {
	CurrentRide(ctx context.Context) (*domain.RideRecord, error)
}

// Activator owns the one-per-client sync context.
type Activator interface {
	Activate(ctx context.Context, record domain.RideRecord)
	Deactivate()
}

// Agent performs the startup recovery sequence.
type Agent struct {
	sess    *session.Context
	api     CurrentRideFetcher
	store   domain.StateStore
	ctrl    *lifecycle.Controller
	manager Activator
	logger  *zap.Logger
}

// New constructs the agent.
func New(sess *session.Context, api CurrentRideFetcher, store domain.StateStore, ctrl *lifecycle.Controller, manager Activator, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{sess: sess, api: api, store: store, ctrl: ctrl, manager: manager, logger: logger}
}

// Recover restores the active ride after a restart. The cached record renders
// first so the client is never blank, then the authoritative fetch overwrites
// it unconditionally, including with "no active ride".
func (a *Agent) Recover(ctx context.Context) {
	cached, hit := a.store.Load(ctx)
	if hit {
		a.logger.Info("restoring cached ride",
			zap.String("ride_id", cached.ID.String()),
			zap.String("status", string(cached.Status)))
		a.ctrl.Track(*cached)
		a.ctrl.Apply(lifecycle.Event{Status: cached.Status, Record: cached})
	}

	record, err := a.api.CurrentRide(ctx)
	if err != nil {
		// Likely offline. The cached display, if any, stays up.
		a.logger.Warn("active ride fetch failed", zap.Error(err))
		return
	}
	if record == nil {
		a.logger.Info("no active ride on server")
		a.store.Clear(ctx)
		a.manager.Deactivate()
		return
	}

	a.store.Save(ctx, *record)
	if record.Status.Terminal() {
		// The ride ended while we were away; apply once for the terminal
		// side effects, but open no channels.
		a.store.Clear(ctx)
		a.ctrl.Track(*record)
		a.ctrl.Apply(lifecycle.Event{Status: record.Status, Record: record})
		return
	}
	a.manager.Activate(ctx, *record)
}
