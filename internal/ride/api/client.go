package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// Client talks to the collaborator ride backend. URL shapes belong to the
// backend; everything here returns domain records.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// Config holds client tunables.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New constructs a backend client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.Token,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		tracer: otel.Tracer("ride.api"),
	}
}

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// CurrentRide fetches the caller's active ride. A backend 404 means no active
// ride and is reported as (nil, nil), not an error.
func (c *Client) CurrentRide(ctx context.Context) (*domain.RideRecord, error) {
	var record domain.RideRecord
	err := c.do(ctx, http.MethodGet, "/api/rides/current/", nil, &record)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch current ride: %w", err)
	}
	return &record, nil
}

// RideByID re-fetches the authoritative record for one ride.
func (c *Client) RideByID(ctx context.Context, id uuid.UUID) (domain.RideRecord, error) {
	var record domain.RideRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/rides/%s/", id), nil, &record); err != nil {
		return domain.RideRecord{}, fmt.Errorf("fetch ride %s: %w", id, err)
	}
	return record, nil
}

// AvailableRides lists open, unassigned rides for the driver side.
func (c *Client) AvailableRides(ctx context.Context) ([]domain.RideRecord, error) {
	var records []domain.RideRecord
	if err := c.do(ctx, http.MethodGet, "/api/rides/available/", nil, &records); err != nil {
		return nil, fmt.Errorf("fetch available rides: %w", err)
	}
	return records, nil
}

// Accept claims an open ride for the authenticated driver.
func (c *Client) Accept(ctx context.Context, id uuid.UUID) (domain.RideRecord, error) {
	body := map[string]string{"action": "ACCEPT"}
	var out struct {
		Ride domain.RideRecord `json:"ride"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/rides/%s/action/", id), body, &out); err != nil {
		return domain.RideRecord{}, fmt.Errorf("accept ride %s: %w", id, err)
	}
	return out.Ride, nil
}

// SetStatus asks the backend for a status transition (COMPLETED when the
// requester ends the trip, FINISHED when the driver confirms payment).
func (c *Client) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.RideRecord, error) {
	body := map[string]domain.Status{"status": status}
	var record domain.RideRecord
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/rides/%s/status/", id), body, &record); err != nil {
		return domain.RideRecord{}, fmt.Errorf("set ride %s to %s: %w", id, status, err)
	}
	return record, nil
}

// Cancel withdraws a ride that has not started.
func (c *Client) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/rides/%s/cancel/", id), nil, nil); err != nil {
		return fmt.Errorf("cancel ride %s: %w", id, err)
	}
	return nil
}

// Messages fetches the conversation for (ride, counterparty). The returned
// order is server-assigned and authoritative.
func (c *Client) Messages(ctx context.Context, rideID, otherID uuid.UUID) ([]domain.ChatMessage, error) {
	q := url.Values{}
	q.Set("ride_id", rideID.String())
	q.Set("other_user_id", otherID.String())
	var messages []domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, "/api/rides/messages/?"+q.Encode(), nil, &messages); err != nil {
		return nil, fmt.Errorf("fetch messages for ride %s: %w", rideID, err)
	}
	return messages, nil
}

// SendMessage posts one chat message.
func (c *Client) SendMessage(ctx context.Context, rideID, receiver uuid.UUID, content string) error {
	body := map[string]string{
		"ride":     rideID.String(),
		"receiver": receiver.String(),
		"content":  content,
	}
	if err := c.do(ctx, http.MethodPost, "/api/rides/messages/send/", body, nil); err != nil {
		return fmt.Errorf("send message on ride %s: %w", rideID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, method+" "+path)
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
