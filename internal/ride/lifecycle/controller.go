// Package lifecycle owns the active ride record and turns incoming status
// updates into UI and channel side effects. Updates reach the controller from
// three sources with no ordering between them: the recovery cache, the poll
// loop, and the push subscription. Side effects are therefore keyed by the
// destination status alone, never by the transition edge, which is what makes
// redundant re-application safe.
package lifecycle

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/session"
)

// Presenter is the view surface the controller drives. Implementations own
// pixels and affordances; the controller only decides which of them exist.
type Presenter interface {
	ShowStatus(text string)
	ShowError(text string)
	SetRequestVisible(visible bool)
	BindPay(rideID uuid.UUID)
	BindConfirm(rideID uuid.UUID)
	ClearActions()
	DrawRoute(pickup, drop domain.GeoPoint)
	UpdateCounterpartMarker(sample domain.LocationSample)
	Reset()
}

// Broadcaster is the location sampling loop the controller starts and stops.
type Broadcaster interface {
	Start()
	Stop()
}

// Event is one inbound message from either sync mechanism. Exactly one of
// Sample or Status is meaningful.
type Event struct {
	Sample *domain.LocationSample

	Status domain.Status
	Record *domain.RideRecord
}

// Config holds controller tunables.
type Config struct {
	// ResetGrace is how long a terminal message stays visible before the
	// view resets.
	ResetGrace time.Duration
}

// Controller applies status updates idempotently and dispatches their side
// effects. It is the single writer of the active ride record.
type Controller struct {
	sess        *session.Context
	store       domain.StateStore
	view        Presenter
	broadcaster Broadcaster
	logger      *zap.Logger
	grace       time.Duration

	events chan Event

	mu             sync.Mutex
	record         *domain.RideRecord
	conn           io.Closer
	routeDrawn     bool
	terminal       bool
	resetScheduled bool
}

// New constructs a controller.
func New(sess *session.Context, store domain.StateStore, view Presenter, broadcaster Broadcaster, logger *zap.Logger, cfg Config) *Controller {
	if cfg.ResetGrace <= 0 {
		cfg.ResetGrace = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sess:        sess,
		store:       store,
		view:        view,
		broadcaster: broadcaster,
		logger:      logger,
		grace:       cfg.ResetGrace,
		events:      make(chan Event, 64),
	}
}

// Dispatch queues an event for the Run loop. Both sync mechanisms funnel
// through this single queue so the controller stays the only state writer.
func (c *Controller) Dispatch(evt Event) {
	c.events <- evt
}

// Run consumes dispatched events until the context ends.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.events:
			c.Apply(evt)
		}
	}
}

// Apply processes one event synchronously. Safe to call directly; re-entrant
// calls with the same payload produce the same observable state.
func (c *Controller) Apply(evt Event) {
	if evt.Sample != nil {
		c.relayLocation(*evt.Sample)
		return
	}
	c.applyStatus(evt.Status, evt.Record)
}

// Track declares a new ride active. This is the explicit "ride becomes
// active" signal: it lifts the terminal latch so status updates for the ride
// are honored again.
func (c *Controller) Track(record domain.RideRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := record
	c.record = &copied
	c.routeDrawn = false
	c.terminal = false
	c.resetScheduled = false
}

// SetConnection hands the controller the active push subscription so terminal
// statuses can close it. A nil conn detaches.
func (c *Controller) SetConnection(conn io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// ActiveRide returns a copy of the ride the controller currently owns.
func (c *Controller) ActiveRide() (domain.RideRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return domain.RideRecord{}, false
	}
	return *c.record, true
}

func (c *Controller) relayLocation(sample domain.LocationSample) {
	// Only the counterpart's position is interesting; our own samples echo
	// back from the fan-out.
	if sample.Role != c.sess.Role.Counterpart() {
		return
	}
	c.view.UpdateCounterpartMarker(sample)
}

func (c *Controller) applyStatus(status domain.Status, payload *domain.RideRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !status.Valid() {
		c.logger.Warn("dropping update with unknown status", zap.String("status", string(status)))
		return
	}
	if c.stale(payload) {
		staleRejected.Inc()
		c.logger.Debug("rejecting stale status update",
			zap.String("status", string(status)),
			zap.Int64("version", payload.Version))
		return
	}
	if c.terminal && !c.newRide(payload) {
		// The ride already ended; only an explicit Track may revive updates.
		c.logger.Debug("ignoring update after terminal status", zap.String("status", string(status)))
		return
	}

	c.merge(status, payload)
	statusApplied.WithLabelValues(string(status)).Inc()

	c.view.ClearActions()
	switch status {
	case domain.StatusRequested:
		c.broadcaster.Stop()
		c.view.SetRequestVisible(false)
		c.view.ShowStatus("Finding nearest driver...")
	case domain.StatusAssigned, domain.StatusOngoing:
		c.cacheRecord()
		c.view.SetRequestVisible(false)
		c.broadcaster.Start()
		c.drawRouteOnce()
		c.view.ShowStatus(statusText(c.sess.Role, status))
	case domain.StatusCompleted:
		// Await payment; channels stay up.
		c.cacheRecord()
		c.view.ShowStatus(statusText(c.sess.Role, status))
		if !c.sess.Driver() && c.record != nil {
			c.view.BindPay(c.record.ID)
		}
	case domain.StatusPaid:
		c.cacheRecord()
		rideID, ok := c.paidRideID(payload)
		if !ok {
			// Binding a confirm action to a guessed id would close the
			// wrong ride. Surface and stop.
			c.logger.Error("paid update without ride id", zap.Error(domain.ErrMissingRideID))
			c.view.ShowError("Payment received but the ride reference is missing. Please refresh.")
			return
		}
		if c.sess.Driver() {
			c.view.BindConfirm(rideID)
		}
		c.view.ShowStatus(statusText(c.sess.Role, status))
	case domain.StatusFinished:
		c.store.Clear(context.Background())
		c.broadcaster.Stop()
		c.closeConn()
		c.terminal = true
		c.view.ShowStatus(statusText(c.sess.Role, status))
		c.view.SetRequestVisible(true)
		c.scheduleReset()
	case domain.StatusCancelled:
		c.store.Clear(context.Background())
		c.broadcaster.Stop()
		c.closeConn()
		c.terminal = true
		c.view.ShowStatus(statusText(c.sess.Role, status))
		c.view.SetRequestVisible(true)
		c.view.Reset()
	}
}

// stale reports whether the payload is older than what we already applied.
// Both sides need a server-assigned version for the guard to engage; without
// versions the documented last-applied-wins race stands.
func (c *Controller) stale(payload *domain.RideRecord) bool {
	if payload == nil || c.record == nil {
		return false
	}
	if payload.ID != c.record.ID || payload.Version <= 0 || c.record.Version <= 0 {
		return false
	}
	return payload.Version < c.record.Version
}

func (c *Controller) newRide(payload *domain.RideRecord) bool {
	if payload == nil || payload.ID == uuid.Nil {
		return false
	}
	return c.record == nil || payload.ID != c.record.ID
}

func (c *Controller) merge(status domain.Status, payload *domain.RideRecord) {
	if payload != nil && payload.ID != uuid.Nil {
		if c.record == nil || c.record.ID != payload.ID {
			copied := *payload
			c.record = &copied
			c.routeDrawn = false
			c.terminal = false
			c.resetScheduled = false
		} else {
			mergeFields(c.record, payload)
		}
	}
	if c.record != nil {
		c.record.Status = status
	}
}

// mergeFields folds a possibly partial payload into the owned record without
// letting absent fields zero out known ones.
func mergeFields(dst, src *domain.RideRecord) {
	if !src.Pickup.Zero() {
		dst.Pickup = src.Pickup
	}
	if !src.Drop.Zero() {
		dst.Drop = src.Drop
	}
	if src.PickupAddress != "" {
		dst.PickupAddress = src.PickupAddress
	}
	if src.DropAddress != "" {
		dst.DropAddress = src.DropAddress
	}
	if src.RiderID != uuid.Nil {
		dst.RiderID = src.RiderID
	}
	if src.DriverID != uuid.Nil {
		dst.DriverID = src.DriverID
	}
	if src.RiderName != "" {
		dst.RiderName = src.RiderName
	}
	if src.DriverName != "" {
		dst.DriverName = src.DriverName
	}
	if src.EstimatedFare != 0 {
		dst.EstimatedFare = src.EstimatedFare
	}
	if src.AmountPaid != 0 {
		dst.AmountPaid = src.AmountPaid
	}
	if src.Version > dst.Version {
		dst.Version = src.Version
	}
}

func (c *Controller) cacheRecord() {
	if c.record != nil && c.record.ID != uuid.Nil {
		c.store.Save(context.Background(), *c.record)
	}
}

func (c *Controller) drawRouteOnce() {
	if c.routeDrawn || c.record == nil {
		return
	}
	if c.record.Pickup.Zero() || c.record.Drop.Zero() {
		return
	}
	c.view.DrawRoute(c.record.Pickup, c.record.Drop)
	c.routeDrawn = true
}

// paidRideID resolves the ride a payment confirmation belongs to: the payload
// id when present, otherwise the ride the controller already owns. There is
// no other fallback; guessing binds the confirm action to the wrong ride.
func (c *Controller) paidRideID(payload *domain.RideRecord) (uuid.UUID, bool) {
	if payload != nil && payload.ID != uuid.Nil {
		return payload.ID, true
	}
	if c.record != nil && c.record.ID != uuid.Nil {
		return c.record.ID, true
	}
	return uuid.Nil, false
}

func (c *Controller) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("close push subscription", zap.Error(err))
	}
	c.conn = nil
}

func (c *Controller) scheduleReset() {
	if c.resetScheduled {
		return
	}
	c.resetScheduled = true
	time.AfterFunc(c.grace, c.view.Reset)
}

func statusText(role domain.Role, status domain.Status) string {
	driver := role == domain.RoleDriver
	switch status {
	case domain.StatusAssigned:
		if driver {
			return "Navigate to pickup location."
		}
		return "Driver is on the way!"
	case domain.StatusOngoing:
		if driver {
			return "Trip in progress. Navigate to destination."
		}
		return "Ride in progress..."
	case domain.StatusCompleted:
		if driver {
			return "Trip Completed. Waiting for payment."
		}
		return "Arrived! Please pay the fare."
	case domain.StatusPaid:
		if driver {
			return "Payment Received! Please verify and close."
		}
		return "Payment Sent! Waiting for driver to confirm receipt..."
	case domain.StatusFinished:
		return "Ride Finished! Thank you."
	case domain.StatusCancelled:
		return "Ride has been cancelled."
	}
	return ""
}
