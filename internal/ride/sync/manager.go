package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/ride/push"
)

// Manager owns the one-per-client sync context. Activating a ride replaces
// the previous context by full teardown first, so two contexts' timers never
// coexist.
type Manager struct {
	transport   push.Transport
	fetcher     RideFetcher
	ctrl        *lifecycle.Controller
	broadcaster Broadcaster
	logger      *zap.Logger
	cfg         Config

	active *Channel
}

// NewManager constructs a manager.
func NewManager(transport push.Transport, fetcher RideFetcher, ctrl *lifecycle.Controller, broadcaster Broadcaster, logger *zap.Logger, cfg Config) *Manager {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		transport:   transport,
		fetcher:     fetcher,
		ctrl:        ctrl,
		broadcaster: broadcaster,
		logger:      logger,
		cfg:         cfg,
	}
}

// Activate makes the given ride the client's active ride: the previous
// context is stopped synchronously, the controller adopts the record, and a
// fresh channel starts. This is the explicit "ride becomes active" event.
func (m *Manager) Activate(ctx context.Context, record domain.RideRecord) {
	m.Deactivate()
	m.ctrl.Track(record)
	m.ctrl.Dispatch(lifecycle.Event{Status: record.Status, Record: &record})
	ch := NewChannel(record.ID, m.transport, m.fetcher, m.ctrl, m.broadcaster, m.logger.Named("channel"), m.cfg)
	ch.Start(ctx)
	m.active = ch
}

// Deactivate tears down the active context, if any, and returns once its
// loops have exited.
func (m *Manager) Deactivate() {
	if m.active == nil {
		return
	}
	m.active.Stop()
	m.active = nil
	m.ctrl.SetConnection(nil)
}

// Active reports whether a sync context currently exists.
func (m *Manager) Active() bool { return m.active != nil }
