package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/session"
)

type fakeView struct {
	mu         sync.Mutex
	statuses   []string
	errors     []string
	visible    []bool
	payBinds   []uuid.UUID
	confirmIDs []uuid.UUID
	clears     int
	routes     int
	markers    []domain.LocationSample
	resets     int
}

func (v *fakeView) ShowStatus(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, text)
}

func (v *fakeView) ShowError(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, text)
}

func (v *fakeView) SetRequestVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = append(v.visible, visible)
}

func (v *fakeView) BindPay(rideID uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payBinds = append(v.payBinds, rideID)
}

func (v *fakeView) BindConfirm(rideID uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmIDs = append(v.confirmIDs, rideID)
}

func (v *fakeView) ClearActions() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clears++
}

func (v *fakeView) DrawRoute(_, _ domain.GeoPoint) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.routes++
}

func (v *fakeView) UpdateCounterpartMarker(sample domain.LocationSample) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markers = append(v.markers, sample)
}

func (v *fakeView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resets++
}

func (v *fakeView) resetCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

func (v *fakeView) lastStatus() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return ""
	}
	return v.statuses[len(v.statuses)-1]
}

type fakeBroadcaster struct {
	starts int
	stops  int
}

func (b *fakeBroadcaster) Start() { b.starts++ }
func (b *fakeBroadcaster) Stop()  { b.stops++ }

type memStore struct {
	record *domain.RideRecord
	saves  int
	clears int
}

func (s *memStore) Save(_ context.Context, record domain.RideRecord) {
	copied := record
	s.record = &copied
	s.saves++
}

func (s *memStore) Load(_ context.Context) (*domain.RideRecord, bool) {
	if s.record == nil {
		return nil, false
	}
	copied := *s.record
	return &copied, true
}

func (s *memStore) Clear(_ context.Context) {
	s.record = nil
	s.clears++
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func passengerSession() *session.Context {
	return &session.Context{UserID: uuid.New(), Role: domain.RolePassenger}
}

func driverSession() *session.Context {
	return &session.Context{UserID: uuid.New(), Role: domain.RoleDriver}
}

func testRecord(status domain.Status) domain.RideRecord {
	return domain.RideRecord{
		ID:            uuid.New(),
		Status:        status,
		Pickup:        domain.GeoPoint{Lat: 35.7, Lng: 51.4},
		Drop:          domain.GeoPoint{Lat: 35.75, Lng: 51.5},
		PickupAddress: "Azadi Square",
		DropAddress:   "Tajrish Square",
		RiderID:       uuid.New(),
		DriverID:      uuid.New(),
		EstimatedFare: 120,
	}
}

func newController(t *testing.T, sess *session.Context) (*lifecycle.Controller, *fakeView, *fakeBroadcaster, *memStore) {
	t.Helper()
	view := &fakeView{}
	broadcaster := &fakeBroadcaster{}
	store := &memStore{}
	ctrl := lifecycle.New(sess, store, view, broadcaster, nil, lifecycle.Config{ResetGrace: 20 * time.Millisecond})
	return ctrl, view, broadcaster, store
}

func TestAssignedCachesAndDrawsRouteOnce(t *testing.T) {
	ctrl, view, broadcaster, store := newController(t, passengerSession())
	record := testRecord(domain.StatusAssigned)

	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &record})
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &record})

	require.Equal(t, 1, view.routes)
	require.Equal(t, 2, broadcaster.starts)
	require.Equal(t, 2, store.saves)
	require.Equal(t, "Driver is on the way!", view.lastStatus())

	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, record.ID, active.ID)
	require.Equal(t, domain.StatusAssigned, active.Status)
}

func TestPartialPayloadKeepsKnownFields(t *testing.T) {
	ctrl, _, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusAssigned)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &record})

	partial := domain.RideRecord{ID: record.ID, Status: domain.StatusOngoing}
	ctrl.Apply(lifecycle.Event{Status: domain.StatusOngoing, Record: &partial})

	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, domain.StatusOngoing, active.Status)
	require.Equal(t, "Azadi Square", active.PickupAddress)
	require.Equal(t, record.DriverID, active.DriverID)
	require.Equal(t, record.EstimatedFare, active.EstimatedFare)
}

func TestUnknownStatusDropped(t *testing.T) {
	ctrl, view, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusAssigned)
	ctrl.Track(record)

	ctrl.Apply(lifecycle.Event{Status: domain.Status("TELEPORTING"), Record: &record})

	require.Empty(t, view.statuses)
	active, _ := ctrl.ActiveRide()
	require.Equal(t, domain.StatusAssigned, active.Status)
}

func TestStaleVersionRejected(t *testing.T) {
	ctrl, _, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusOngoing)
	record.Version = 5
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusOngoing, Record: &record})

	older := record
	older.Status = domain.StatusAssigned
	older.Version = 3
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &older})

	active, _ := ctrl.ActiveRide()
	require.Equal(t, domain.StatusOngoing, active.Status)

	// Equal versions are redeliveries, not regressions.
	same := record
	same.Status = domain.StatusCompleted
	ctrl.Apply(lifecycle.Event{Status: domain.StatusCompleted, Record: &same})
	active, _ = ctrl.ActiveRide()
	require.Equal(t, domain.StatusCompleted, active.Status)
}

func TestUnversionedUpdatesLastAppliedWins(t *testing.T) {
	ctrl, _, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusOngoing)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusOngoing, Record: &record})

	// Without server versions a late ASSIGNED still lands.
	late := record
	late.Status = domain.StatusAssigned
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &late})

	active, _ := ctrl.ActiveRide()
	require.Equal(t, domain.StatusAssigned, active.Status)
}

func TestCompletedBindsPayForPassengerOnly(t *testing.T) {
	ctrl, view, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusCompleted)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusCompleted, Record: &record})
	require.Equal(t, []uuid.UUID{record.ID}, view.payBinds)

	dctrl, dview, _, _ := newController(t, driverSession())
	dctrl.Apply(lifecycle.Event{Status: domain.StatusCompleted, Record: &record})
	require.Empty(t, dview.payBinds)
	require.Equal(t, "Trip Completed. Waiting for payment.", dview.lastStatus())
}

func TestPaidFallsBackToOwnedRecordID(t *testing.T) {
	ctrl, view, _, _ := newController(t, driverSession())
	record := testRecord(domain.StatusCompleted)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusCompleted, Record: &record})

	// PAID arrives with no ride id on the payload.
	ctrl.Apply(lifecycle.Event{Status: domain.StatusPaid})

	require.Equal(t, []uuid.UUID{record.ID}, view.confirmIDs)
	require.Empty(t, view.errors)
}

func TestPaidWithoutAnyRideIDSurfacesError(t *testing.T) {
	ctrl, view, _, _ := newController(t, driverSession())

	ctrl.Apply(lifecycle.Event{Status: domain.StatusPaid})

	require.Empty(t, view.confirmIDs)
	require.Len(t, view.errors, 1)
	require.Contains(t, view.errors[0], "ride reference is missing")
}

func TestFinishedCleansUpAndLatches(t *testing.T) {
	ctrl, view, broadcaster, store := newController(t, passengerSession())
	conn := &closeRecorder{}
	ctrl.SetConnection(conn)
	record := testRecord(domain.StatusOngoing)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusOngoing, Record: &record})

	finished := record
	finished.Status = domain.StatusFinished
	ctrl.Apply(lifecycle.Event{Status: domain.StatusFinished, Record: &finished})

	require.Equal(t, 1, conn.closed)
	require.Equal(t, 1, store.clears)
	require.True(t, view.visible[len(view.visible)-1])

	// A replayed ONGOING for the same ride must not reopen it.
	ctrl.Apply(lifecycle.Event{Status: domain.StatusOngoing, Record: &record})
	active, _ := ctrl.ActiveRide()
	require.Equal(t, domain.StatusFinished, active.Status)
	require.Equal(t, 1, broadcaster.stops)
}

func TestFinishedResetsAfterGrace(t *testing.T) {
	ctrl, view, _, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusOngoing)
	ctrl.Track(record)

	finished := record
	finished.Status = domain.StatusFinished
	ctrl.Apply(lifecycle.Event{Status: domain.StatusFinished, Record: &finished})
	ctrl.Apply(lifecycle.Event{Status: domain.StatusFinished, Record: &finished})

	require.Eventually(t, func() bool { return view.resetCount() == 1 }, time.Second, 5*time.Millisecond)

	// Redundant FINISHED deliveries scheduled exactly one reset.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, view.resetCount())
}

func TestCancelledResetsImmediately(t *testing.T) {
	ctrl, view, _, store := newController(t, passengerSession())
	record := testRecord(domain.StatusRequested)
	ctrl.Track(record)

	cancelled := record
	cancelled.Status = domain.StatusCancelled
	ctrl.Apply(lifecycle.Event{Status: domain.StatusCancelled, Record: &cancelled})

	require.Equal(t, 1, view.resetCount())
	require.Equal(t, 1, store.clears)
	require.Equal(t, "Ride has been cancelled.", view.lastStatus())
}

func TestTrackLiftsTerminalLatch(t *testing.T) {
	ctrl, _, _, _ := newController(t, driverSession())
	record := testRecord(domain.StatusOngoing)
	ctrl.Track(record)

	finished := record
	finished.Status = domain.StatusFinished
	ctrl.Apply(lifecycle.Event{Status: domain.StatusFinished, Record: &finished})

	next := testRecord(domain.StatusAssigned)
	ctrl.Track(next)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &next})

	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, next.ID, active.ID)
	require.Equal(t, domain.StatusAssigned, active.Status)
}

func TestNewRidePayloadBreaksTerminalLatch(t *testing.T) {
	ctrl, _, _, _ := newController(t, driverSession())
	record := testRecord(domain.StatusFinished)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusFinished, Record: &record})

	// A status update for a different ride id is a fresh ride, not a replay.
	next := testRecord(domain.StatusAssigned)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusAssigned, Record: &next})

	active, _ := ctrl.ActiveRide()
	require.Equal(t, next.ID, active.ID)
	require.Equal(t, domain.StatusAssigned, active.Status)
}

func TestLocationRelayFiltersOwnEcho(t *testing.T) {
	ctrl, view, _, _ := newController(t, passengerSession())

	own := domain.LocationSample{Lat: 1, Lng: 2, Role: domain.RolePassenger}
	ctrl.Apply(lifecycle.Event{Sample: &own})
	require.Empty(t, view.markers)

	theirs := domain.LocationSample{Lat: 3, Lng: 4, Role: domain.RoleDriver}
	ctrl.Apply(lifecycle.Event{Sample: &theirs})
	require.Equal(t, []domain.LocationSample{theirs}, view.markers)
}

func TestRunConsumesDispatchedEvents(t *testing.T) {
	ctrl, view, _, _ := newController(t, passengerSession())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	record := testRecord(domain.StatusAssigned)
	ctrl.Dispatch(lifecycle.Event{Status: domain.StatusAssigned, Record: &record})

	require.Eventually(t, func() bool {
		return view.lastStatus() == "Driver is on the way!"
	}, time.Second, 5*time.Millisecond)
}

func TestRequestedHidesRequestForm(t *testing.T) {
	ctrl, view, broadcaster, _ := newController(t, passengerSession())
	record := testRecord(domain.StatusRequested)
	ctrl.Track(record)
	ctrl.Apply(lifecycle.Event{Status: domain.StatusRequested, Record: &record})

	require.Equal(t, 1, broadcaster.stops)
	require.Equal(t, []bool{false}, view.visible)
	require.Equal(t, "Finding nearest driver...", view.lastStatus())
}
