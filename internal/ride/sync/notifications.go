package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/push"
)

// CandidateHandler consumes new-ride signals; the notification dispatcher
// implements it.
type CandidateHandler interface {
	HandleCandidate(summary domain.RideSummary)
}

// Notifications maintains the driver-side new-ride stream. Unlike the ride
// channel, this subscription is redialed after a fixed delay on every close,
// indefinitely, independent of ride state.
type Notifications struct {
	transport push.Transport
	handler   CandidateHandler
	logger    *zap.Logger
	delay     time.Duration
}

// NewNotifications constructs the stream runner.
func NewNotifications(transport push.Transport, handler CandidateHandler, logger *zap.Logger, cfg Config) *Notifications {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifications{
		transport: transport,
		handler:   handler,
		logger:    logger,
		delay:     cfg.ReconnectDelay,
	}
}

// Run dials, pumps, and redials until the context ends.
func (n *Notifications) Run(ctx context.Context) {
	for {
		conn, err := n.transport.DialNotifications(ctx)
		if err != nil {
			n.logger.Warn("notification stream dial failed", zap.Error(err))
		} else {
			n.pump(conn)
			_ = conn.Close()
		}
		notifyReconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.delay):
		}
	}
}

func (n *Notifications) pump(conn push.Conn) {
	for {
		envelope, err := conn.Receive()
		if err != nil {
			n.logger.Debug("notification stream closed", zap.Error(err))
			return
		}
		if envelope.Type != domain.TypeNewRideRequest || envelope.Ride == nil {
			continue
		}
		n.handler.HandleCandidate(envelope.Ride.Summary())
	}
}
