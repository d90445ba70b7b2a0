package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/ridelink/internal/ride/domain"
)

func TestStatusClassification(t *testing.T) {
	require.True(t, domain.StatusRequested.Valid())
	require.False(t, domain.Status("LOST").Valid())

	require.True(t, domain.StatusFinished.Terminal())
	require.True(t, domain.StatusCancelled.Terminal())
	require.False(t, domain.StatusPaid.Terminal())

	// REQUESTED polls so an unassigned requester still converges.
	require.True(t, domain.StatusRequested.Trackable())
	require.True(t, domain.StatusFinished.Trackable())
	require.False(t, domain.StatusCancelled.Trackable())
	require.False(t, domain.Status("LOST").Trackable())
}

func TestRoleCounterpart(t *testing.T) {
	require.Equal(t, domain.RolePassenger, domain.RoleDriver.Counterpart())
	require.Equal(t, domain.RoleDriver, domain.RolePassenger.Counterpart())
}

func TestSummaryCarriesOfferFields(t *testing.T) {
	record := domain.RideRecord{
		ID:            uuid.New(),
		PickupAddress: "Azadi Square",
		DropAddress:   "Tajrish Square",
		EstimatedFare: 120,
		RiderName:     "not part of the offer",
	}
	summary := record.Summary()
	require.Equal(t, record.ID, summary.RideID)
	require.Equal(t, "Azadi Square", summary.PickupAddress)
	require.Equal(t, "Tajrish Square", summary.DropAddress)
	require.Equal(t, float64(120), summary.EstimatedFare)
}

func TestEnvelopeSample(t *testing.T) {
	envelope := domain.Envelope{Type: domain.TypeLocationUpdate, Lat: 35.7, Lng: 51.4, Role: domain.RoleDriver}
	sample := envelope.Sample()
	require.Equal(t, 35.7, sample.Lat)
	require.Equal(t, 51.4, sample.Lng)
	require.Equal(t, domain.RoleDriver, sample.Role)
}
