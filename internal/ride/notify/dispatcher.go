// Package notify funnels driver-side new-ride signals from both producers
// (push stream and availability poll) into one deduplicated alert stream.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

var (
	offerAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_offer_alerts_total",
		Help: "Distinct new-ride alerts surfaced to the driver.",
	})
	offerDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_offer_duplicates_total",
		Help: "Candidate offers suppressed because the ride was already seen this session.",
	})
)

// OfferView shows the single current best offer and the availability badge.
// Later offers overwrite the display; they never stack.
type OfferView interface {
	ShowOffer(offer domain.RideSummary)
	SetAvailableCount(count int)
}

// AcceptAPI claims a ride on the backend.
type AcceptAPI interface {
	Accept(ctx context.Context, id uuid.UUID) (domain.RideRecord, error)
}

// RideStarter begins a dedicated sync context for an accepted ride.
type RideStarter interface {
	Activate(ctx context.Context, record domain.RideRecord)
}

// Dispatcher deduplicates candidates against an insert-only per-session set
// of ride ids. A given ride alerts at most once per session, regardless of
// how many times and through which producer it shows up.
type Dispatcher struct {
	view    OfferView
	api     AcceptAPI
	starter RideStarter
	logger  *zap.Logger

	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(view OfferView, api AcceptAPI, starter RideStarter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		view:    view,
		api:     api,
		starter: starter,
		logger:  logger,
		seen:    make(map[uuid.UUID]struct{}),
	}
}

// HandleCandidate is the single entry point for both producers. The ride id
// is marked seen before the alert goes out, so interleaved deliveries of the
// same id cannot double-alert.
func (d *Dispatcher) HandleCandidate(summary domain.RideSummary) {
	d.mu.Lock()
	if _, dup := d.seen[summary.RideID]; dup {
		d.mu.Unlock()
		offerDuplicates.Inc()
		return
	}
	d.seen[summary.RideID] = struct{}{}
	d.mu.Unlock()

	offerAlerts.Inc()
	d.logger.Info("new ride offer",
		zap.String("ride_id", summary.RideID.String()),
		zap.Float64("fare", summary.EstimatedFare))
	d.view.ShowOffer(summary)
}

// Seen reports whether a ride already alerted this session.
func (d *Dispatcher) Seen(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Reset empties the seen set. Called on logout or going offline.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[uuid.UUID]struct{})
}

// Accept claims the offered ride and hands the updated record to the sync
// manager, which starts the dedicated ride context.
func (d *Dispatcher) Accept(ctx context.Context, rideID uuid.UUID) error {
	record, err := d.api.Accept(ctx, rideID)
	if err != nil {
		return fmt.Errorf("accept offer: %w", err)
	}
	d.starter.Activate(ctx, record)
	return nil
}
