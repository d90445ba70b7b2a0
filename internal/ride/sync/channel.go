// Package sync keeps the client's view of the active ride converged with the
// backend through two deliberately redundant mechanisms: a push subscription
// and a fixed-interval poll. A push failure is silent, so the poll loop is
// always running alongside it rather than standing by as a fallback.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/ride/location"
	"github.com/example/ridelink/internal/ride/push"
)

// RideFetcher is the poll loop's view of the backend.
type RideFetcher interface {
	RideByID(ctx context.Context, id uuid.UUID) (domain.RideRecord, error)
}

// Broadcaster is the slice of the location broadcaster the channel drives.
type Broadcaster interface {
	Start()
	Stop()
	SetSink(sink location.Sink)
}

// Config holds channel tunables.
type Config struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
}

// Channel is the dual-transport sync context for one ride. It owns the push
// subscription and the poll loop and feeds both into the controller's event
// queue.
type Channel struct {
	rideID      uuid.UUID
	transport   push.Transport
	fetcher     RideFetcher
	ctrl        *lifecycle.Controller
	broadcaster Broadcaster
	logger      *zap.Logger
	cfg         Config

	mu     sync.Mutex
	conn   push.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChannel constructs a channel for one ride.
func NewChannel(rideID uuid.UUID, transport push.Transport, fetcher RideFetcher, ctrl *lifecycle.Controller, broadcaster Broadcaster, logger *zap.Logger, cfg Config) *Channel {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		rideID:      rideID,
		transport:   transport,
		fetcher:     fetcher,
		ctrl:        ctrl,
		broadcaster: broadcaster,
		logger:      logger.With(zap.String("ride_id", rideID.String())),
		cfg:         cfg,
	}
}

// Start opens the push subscription and begins the poll loop. A failed push
// dial is tolerated: the poll loop alone still converges the ride.
func (ch *Channel) Start(ctx context.Context) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ctx, ch.cancel = context.WithCancel(ctx)

	conn, err := ch.transport.DialRide(ctx, ch.rideID)
	if err != nil {
		ch.logger.Warn("push subscription unavailable, polling only", zap.Error(err))
	} else {
		ch.conn = conn
		ch.ctrl.SetConnection(conn)
		ch.broadcaster.SetSink(conn)
		// Subscription open means live tracking begins now.
		ch.broadcaster.Start()
		ch.wg.Add(1)
		go ch.readLoop(conn)
	}

	ch.wg.Add(1)
	go ch.pollLoop(ctx)
}

// Stop tears the whole context down and returns only when both loops have
// exited. Callers replace a channel by stopping the old one first.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	ch.wg.Wait()
}

func (ch *Channel) readLoop(conn push.Conn) {
	defer ch.wg.Done()
	for {
		envelope, err := conn.Receive()
		if err != nil {
			// The ride subscription is not redialed; the poll loop carries
			// on, and a fresh subscription comes with a fresh activation.
			if !errors.Is(err, push.ErrClosed) {
				ch.logger.Debug("push subscription closed", zap.Error(err))
			}
			ch.broadcaster.Stop()
			ch.broadcaster.SetSink(nil)
			return
		}
		pushMessages.WithLabelValues(string(envelope.Type)).Inc()
		switch envelope.Type {
		case domain.TypeLocationUpdate:
			sample := envelope.Sample()
			ch.ctrl.Dispatch(lifecycle.Event{Sample: &sample})
		case domain.TypeStatusUpdate:
			ch.ctrl.Dispatch(lifecycle.Event{Status: statusOf(envelope), Record: envelope.Ride})
		default:
			ch.logger.Debug("ignoring envelope", zap.String("type", string(envelope.Type)))
		}
	}
}

func (ch *Channel) pollLoop(ctx context.Context) {
	defer ch.wg.Done()
	ticker := time.NewTicker(ch.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record, err := ch.fetcher.RideByID(ctx, ch.rideID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				pollErrors.Inc()
				ch.logger.Warn("ride poll failed", zap.Error(err))
				continue
			}
			if !record.Status.Trackable() && !record.Status.Terminal() {
				continue
			}
			ch.ctrl.Dispatch(lifecycle.Event{Status: record.Status, Record: &record})
			if record.Status.Terminal() {
				return
			}
		}
	}
}

func statusOf(envelope domain.Envelope) domain.Status {
	if envelope.Status != "" {
		return envelope.Status
	}
	if envelope.Ride != nil {
		return envelope.Ride.Status
	}
	return ""
}
