package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/ridelink/internal/ride/domain"
)

// NATSTransport carries push envelopes over NATS subjects instead of
// websockets, for deployments that fan out through a broker. Inbound
// envelopes arrive on the subscribed subject; outbound ones (location
// samples) publish to the paired ".client" subject.
type NATSTransport struct {
	conn   *nats.Conn
	userID uuid.UUID
}

// NewNATSTransport constructs the transport for one authenticated user.
func NewNATSTransport(conn *nats.Conn, userID uuid.UUID) *NATSTransport {
	return &NATSTransport{conn: conn, userID: userID}
}

func (t *NATSTransport) DialRide(_ context.Context, rideID uuid.UUID) (Conn, error) {
	subject := "ride." + rideID.String()
	return t.subscribe(subject, subject+".client")
}

func (t *NATSTransport) DialNotifications(_ context.Context) (Conn, error) {
	return t.subscribe("notify."+t.userID.String(), "")
}

func (t *NATSTransport) subscribe(inbound, outbound string) (Conn, error) {
	ch := make(chan *nats.Msg, 64)
	sub, err := t.conn.ChanSubscribe(inbound, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", inbound, err)
	}
	return &natsConn{
		conn:     t.conn,
		sub:      sub,
		inbox:    ch,
		outbound: outbound,
		closed:   make(chan struct{}),
	}, nil
}

type natsConn struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	inbox    chan *nats.Msg
	outbound string
	closed   chan struct{}
	once     sync.Once
}

func (c *natsConn) Receive() (domain.Envelope, error) {
	select {
	case <-c.closed:
		return domain.Envelope{}, ErrClosed
	case msg := <-c.inbox:
		var envelope domain.Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			return domain.Envelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		return envelope, nil
	}
}

func (c *natsConn) Send(envelope domain.Envelope) error {
	if c.outbound == "" {
		return nil
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.conn.PublishMsg(&nats.Msg{Subject: c.outbound, Data: payload})
}

func (c *natsConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.sub.Unsubscribe()
		close(c.closed)
	})
	return err
}
