package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the ride's stage in its lifecycle progression.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusAssigned  Status = "ASSIGNED"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusPaid      Status = "PAID"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
)

var ErrMissingRideID = errors.New("ride id missing from status payload")
var ErrUnknownStatus = errors.New("unknown ride status")

// Valid reports whether s is one of the defined lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAssigned, StatusOngoing, StatusCompleted,
		StatusPaid, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the ride can make no further progress.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Trackable reports whether the poll loop should keep re-fetching the ride.
// REQUESTED is included so an unassigned requester still converges on the
// authoritative record.
func (s Status) Trackable() bool {
	return s.Valid() && s != StatusCancelled
}

// Role identifies which side of the ride a participant is on.
type Role string

const (
	RoleDriver    Role = "DRIVER"
	RolePassenger Role = "PASSENGER"
)

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleDriver {
		return RolePassenger
	}
	return RoleDriver
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point carries no coordinates.
func (p GeoPoint) Zero() bool { return p.Lat == 0 && p.Lng == 0 }

// RideRecord is the single active ride as the backend reports it. The
// controller owns the mutable copy; the state store holds a read-only hint.
type RideRecord struct {
	ID            uuid.UUID `json:"id"`
	Status        Status    `json:"status"`
	Pickup        GeoPoint  `json:"pickup"`
	Drop          GeoPoint  `json:"drop"`
	PickupAddress string    `json:"pickup_address"`
	DropAddress   string    `json:"drop_address"`
	RiderID       uuid.UUID `json:"rider_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	RiderName     string    `json:"rider_name"`
	DriverName    string    `json:"driver_name"`
	EstimatedFare float64   `json:"estimated_fare"`
	AmountPaid    float64   `json:"amount_paid"`

	// Version is assigned by the server and increases on every mutation.
	// Zero means the backend did not supply one.
	Version int64 `json:"version,omitempty"`
}

// Summary reduces a record to the fields a driver needs to judge an offer.
func (r RideRecord) Summary() RideSummary {
	return RideSummary{
		RideID:        r.ID,
		PickupAddress: r.PickupAddress,
		DropAddress:   r.DropAddress,
		EstimatedFare: r.EstimatedFare,
	}
}

// RideSummary is the transient new-ride notification payload.
type RideSummary struct {
	RideID        uuid.UUID `json:"ride_id"`
	PickupAddress string    `json:"pickup_address"`
	DropAddress   string    `json:"drop_address"`
	EstimatedFare float64   `json:"estimated_fare"`
}

// LocationSample is a single GPS fix relayed to the opposite role. It is
// never persisted.
type LocationSample struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Role Role    `json:"role,omitempty"`
}

// ChatMessage ordering is server-assigned; each poll result replaces the
// displayed conversation wholesale.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	RideID    uuid.UUID `json:"ride"`
	Sender    uuid.UUID `json:"sender"`
	Receiver  uuid.UUID `json:"receiver"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageType discriminates push-channel envelopes.
type MessageType string

const (
	TypeLocationUpdate MessageType = "location_update"
	TypeStatusUpdate   MessageType = "status_update"
	TypeNewRideRequest MessageType = "new_ride_request"
)

// Envelope is the push-channel wire message for both the per-ride channel and
// the driver notification channel.
type Envelope struct {
	Type MessageType `json:"type"`

	// location_update
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
	Role Role    `json:"role,omitempty"`

	// status_update and new_ride_request
	Status Status      `json:"status,omitempty"`
	Ride   *RideRecord `json:"ride,omitempty"`
}

// Sample extracts the location payload.
func (e Envelope) Sample() LocationSample {
	return LocationSample{Lat: e.Lat, Lng: e.Lng, Role: e.Role}
}

// StateStore is the durable local recovery cache. It is a hint, never
// authoritative: implementations absorb their own failures, so Load reports a
// miss instead of an error and Save/Clear never fail their caller.
type StateStore interface {
	Save(ctx context.Context, record RideRecord)
	Load(ctx context.Context) (*RideRecord, bool)
	Clear(ctx context.Context)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
