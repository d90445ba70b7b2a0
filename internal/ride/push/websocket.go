package push

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ridelink/internal/ride/domain"
)

// WebsocketTransport dials the backend's websocket endpoints, authenticating
// with the session token the way the backend expects (query parameter).
type WebsocketTransport struct {
	base  string // ws:// or wss:// root
	token string
}

// NewWebsocketTransport constructs the transport.
func NewWebsocketTransport(base, token string) *WebsocketTransport {
	return &WebsocketTransport{base: base, token: token}
}

func (t *WebsocketTransport) DialRide(ctx context.Context, rideID uuid.UUID) (Conn, error) {
	return t.dial(ctx, fmt.Sprintf("%s/ws/rides/%s/", t.base, rideID))
}

func (t *WebsocketTransport) DialNotifications(ctx context.Context) (Conn, error) {
	return t.dial(ctx, t.base+"/ws/notifications/")
}

func (t *WebsocketTransport) dial(ctx context.Context, endpoint string) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("token", t.token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Path, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla allows one concurrent writer only.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Receive() (domain.Envelope, error) {
	var envelope domain.Envelope
	if err := c.conn.ReadJSON(&envelope); err != nil {
		return domain.Envelope{}, err
	}
	return envelope, nil
}

func (c *wsConn) Send(envelope domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(envelope)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
