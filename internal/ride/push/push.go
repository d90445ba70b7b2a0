// Package push provides the server-initiated message streams: one scoped to a
// ride, one to a driver's notification feed. Two transports exist; the agent
// picks one by configuration.
package push

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/ridelink/internal/ride/domain"
)

// ErrClosed is returned by Receive after the subscription is closed.
var ErrClosed = errors.New("push subscription closed")

// Conn is one live subscription. Receive blocks until a message arrives or
// the subscription dies; Send pushes an outbound envelope upstream.
type Conn interface {
	Receive() (domain.Envelope, error)
	Send(envelope domain.Envelope) error
	Close() error
}

// Transport dials subscriptions.
type Transport interface {
	// DialRide opens the channel scoped to one ride.
	DialRide(ctx context.Context, rideID uuid.UUID) (Conn, error)
	// DialNotifications opens the caller's new-ride notification stream.
	DialNotifications(ctx context.Context) (Conn, error)
}
