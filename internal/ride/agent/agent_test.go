package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/ridelink/internal/ride/agent"
	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/session"
)

type memStore struct {
	record *domain.RideRecord
	clears int
}

func (s *memStore) Save(_ context.Context, record domain.RideRecord) {
	copied := record
	s.record = &copied
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

type fetcherStub struct {
	record *domain.RideRecord
	err    error
}

func (f *fetcherStub) CurrentRide(_ context.Context) (*domain.RideRecord, error) {
	return f.record, f.err
}

type managerStub struct {
	activated   []domain.RideRecord
	deactivates int
}

func (m *managerStub) Activate(_ context.Context, record domain.RideRecord) {
	m.activated = append(m.activated, record)
}

func (m *managerStub) Deactivate() { m.deactivates++ }

type nopPresenter struct{}

func (nopPresenter) ShowStatus(string)                             {}
func (nopPresenter) ShowError(string)                              {}
func (nopPresenter) SetRequestVisible(bool)                        {}
func (nopPresenter) BindPay(uuid.UUID)                             {}
func (nopPresenter) BindConfirm(uuid.UUID)                         {}
func (nopPresenter) ClearActions()                                 {}
func (nopPresenter) DrawRoute(_, _ domain.GeoPoint)                {}
func (nopPresenter) UpdateCounterpartMarker(domain.LocationSample) {}
func (nopPresenter) Reset()                                        {}

type nopBroadcaster struct{}

func (nopBroadcaster) Start() {}
func (nopBroadcaster) Stop()  {}

func newAgent(t *testing.T, store *memStore, fetcher *fetcherStub, manager *managerStub) (*agent.Agent, *lifecycle.Controller) {
	t.Helper()
	sess := &session.Context{UserID: uuid.New(), Role: domain.RolePassenger}
	ctrl := lifecycle.New(sess, store, nopPresenter{}, nopBroadcaster{}, nil, lifecycle.Config{})
	return agent.New(sess, fetcher, store, ctrl, manager, nil), ctrl
}

func record(status domain.Status) *domain.RideRecord {
	return &domain.RideRecord{ID: uuid.New(), Status: status, RiderID: uuid.New(), DriverID: uuid.New()}
}

func TestRecoverActivatesServerRide(t *testing.T) {
	store := &memStore{}
	server := record(domain.StatusOngoing)
	fetcher := &fetcherStub{record: server}
	manager := &managerStub{}
	a, _ := newAgent(t, store, fetcher, manager)

	a.Recover(context.Background())

	require.Len(t, manager.activated, 1)
	require.Equal(t, server.ID, manager.activated[0].ID)
	saved, hit := store.Load(context.Background())
	require.True(t, hit)
	require.Equal(t, server.ID, saved.ID)
}

func TestRecoverPrefersServerOverCache(t *testing.T) {
	cached := record(domain.StatusAssigned)
	store := &memStore{record: cached}
	server := record(domain.StatusOngoing)
	fetcher := &fetcherStub{record: server}
	manager := &managerStub{}
	a, ctrl := newAgent(t, store, fetcher, manager)

	a.Recover(context.Background())

	// Cache rendered first, then the authoritative record took over.
	require.Len(t, manager.activated, 1)
	require.Equal(t, server.ID, manager.activated[0].ID)
	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, server.ID, active.ID)
}

func TestRecoverKeepsCacheWhenOffline(t *testing.T) {
	cached := record(domain.StatusOngoing)
	store := &memStore{record: cached}
	fetcher := &fetcherStub{err: errors.New("connection refused")}
	manager := &managerStub{}
	a, ctrl := newAgent(t, store, fetcher, manager)

	a.Recover(context.Background())

	require.Empty(t, manager.activated)
	require.Zero(t, store.clears)
	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, cached.ID, active.ID)
	require.Equal(t, domain.StatusOngoing, active.Status)
}

func TestRecoverClearsStaleCacheWhenServerSaysNone(t *testing.T) {
	cached := record(domain.StatusOngoing)
	store := &memStore{record: cached}
	fetcher := &fetcherStub{}
	manager := &managerStub{}
	a, _ := newAgent(t, store, fetcher, manager)

	a.Recover(context.Background())

	require.Empty(t, manager.activated)
	require.Equal(t, 1, manager.deactivates)
	_, hit := store.Load(context.Background())
	require.False(t, hit)
}

func TestRecoverTerminalRideOpensNoChannels(t *testing.T) {
	store := &memStore{}
	server := record(domain.StatusFinished)
	fetcher := &fetcherStub{record: server}
	manager := &managerStub{}
	a, ctrl := newAgent(t, store, fetcher, manager)

	a.Recover(context.Background())

	require.Empty(t, manager.activated)
	_, hit := store.Load(context.Background())
	require.False(t, hit)
	active, ok := ctrl.ActiveRide()
	require.True(t, ok)
	require.Equal(t, domain.StatusFinished, active.Status)
}
