// Package chat runs the per-conversation polling loop. Its lifecycle is
// independent of the ride channel: a conversation can open and close many
// times within one ride.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// ErrNoConversation is returned by Send when no conversation is open.
var ErrNoConversation = errors.New("no open conversation")

// View renders the conversation. The message list from each poll replaces the
// display wholesale; ordering is the server's.
type View interface {
	ShowMessages(messages []domain.ChatMessage)
	ClearInput()
	RestoreInput(text string)
	ShowError(text string)
}

// API is the chat slice of the backend client.
type API interface {
	Messages(ctx context.Context, rideID, otherID uuid.UUID) ([]domain.ChatMessage, error)
	SendMessage(ctx context.Context, rideID, receiver uuid.UUID, content string) error
}

// Channel polls one conversation. At most one loop runs per client; Open
// replaces any previous loop before starting its own.
type Channel struct {
	api      API
	view     View
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	rideID  uuid.UUID
	otherID uuid.UUID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a chat channel.
func New(api API, view View, logger *zap.Logger, interval time.Duration) *Channel {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{api: api, view: view, logger: logger, interval: interval}
}

// Open starts polling (ride, counterparty), fetching once immediately. Any
// running loop is torn down first.
func (c *Channel) Open(ctx context.Context, rideID, otherID uuid.UUID) {
	c.stop()

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.rideID = rideID
	c.otherID = otherID
	c.cancel = cancel
	c.mu.Unlock()

	c.refresh(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
}

// Close stops the loop and forgets the conversation identity.
func (c *Channel) Close() {
	c.stop()
	c.mu.Lock()
	c.rideID = uuid.Nil
	c.otherID = uuid.Nil
	c.mu.Unlock()
}

// Conversation returns the currently open conversation, if any.
func (c *Channel) Conversation() (rideID, otherID uuid.UUID, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rideID, c.otherID, c.cancel != nil
}

// Send posts a message. The input is cleared optimistically; on failure the
// original text is restored and the error surfaced. Success refreshes the
// conversation immediately instead of waiting for the next tick.
func (c *Channel) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	rideID, otherID := c.rideID, c.otherID
	c.mu.Unlock()
	if rideID == uuid.Nil {
		return ErrNoConversation
	}

	c.view.ClearInput()
	if err := c.api.SendMessage(ctx, rideID, otherID, content); err != nil {
		c.view.RestoreInput(content)
		c.view.ShowError("Message not sent. Try again.")
		return fmt.Errorf("send chat message: %w", err)
	}
	c.refresh(ctx)
	return nil
}

func (c *Channel) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *Channel) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Channel) refresh(ctx context.Context) {
	c.mu.Lock()
	rideID, otherID := c.rideID, c.otherID
	c.mu.Unlock()
	if rideID == uuid.Nil {
		return
	}
	messages, err := c.api.Messages(ctx, rideID, otherID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("chat poll failed", zap.Error(err))
		}
		return
	}
	c.view.ShowMessages(messages)
}
