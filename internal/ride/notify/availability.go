package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// Lister fetches the open, unassigned rides a driver could take.
type Lister interface {
	AvailableRides(ctx context.Context) ([]domain.RideRecord, error)
}

// Availability is the poll-side producer of new-ride candidates. It also
// keeps the dashboard badge count current.
type Availability struct {
	api        Lister
	dispatcher *Dispatcher
	view       OfferView
	logger     *zap.Logger
	interval   time.Duration
}

// NewAvailability constructs the poll loop.
func NewAvailability(api Lister, dispatcher *Dispatcher, view OfferView, logger *zap.Logger, interval time.Duration) *Availability {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Availability{api: api, dispatcher: dispatcher, view: view, logger: logger, interval: interval}
}

// Run polls until the context ends. Fetch failures are logged and the loop
// carries on.
func (a *Availability) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rides, err := a.api.AvailableRides(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.logger.Warn("availability poll failed", zap.Error(err))
				continue
			}
			a.view.SetAvailableCount(len(rides))
			for _, ride := range rides {
				a.dispatcher.HandleCandidate(ride.Summary())
			}
		}
	}
}
