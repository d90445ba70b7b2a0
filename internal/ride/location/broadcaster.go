// Package location samples the device position on a fixed interval and pushes
// it upstream while a ride is active.
package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// Sampler reads the device position. Implementations wrap whatever positioning
// capability the platform offers.
type Sampler interface {
	Sample(ctx context.Context) (domain.GeoPoint, error)
}

// Sink is where samples go: the active push subscription.
type Sink interface {
	Send(envelope domain.Envelope) error
}

// ErrorSurface receives the persistent failure state when sampling is
// unavailable.
type ErrorSurface interface {
	ShowError(text string)
}

// Config holds broadcaster tunables.
type Config struct {
	Interval time.Duration
}

// Broadcaster runs the sampling loop. Start is idempotent; a sampling failure
// disables the broadcaster for the rest of the session instead of retrying.
type Broadcaster struct {
	sampler  Sampler
	view     ErrorSurface
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	sink     Sink
	cancel   context.CancelFunc
	disabled bool
}

// New constructs a broadcaster.
func New(sampler Sampler, view ErrorSurface, logger *zap.Logger, cfg Config) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{sampler: sampler, view: view, logger: logger, interval: cfg.Interval}
}

// SetSink points the broadcaster at the current push subscription. A nil sink
// keeps the loop running but drops samples.
func (b *Broadcaster) SetSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Start begins sampling. Any running loop is stopped first, so repeated calls
// never stack samplers.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(ctx)
}

// Stop halts sampling. A no-op when nothing is running.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// Disabled reports whether sampling failed permanently this session.
func (b *Broadcaster) Disabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled
}

func (b *Broadcaster) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.tick(ctx) {
				return
			}
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) bool {
	point, err := b.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		b.disable(err)
		return false
	}
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		return true
	}
	err = sink.Send(domain.Envelope{Type: domain.TypeLocationUpdate, Lat: point.Lat, Lng: point.Lng})
	if err != nil {
		b.logger.Warn("send location sample", zap.Error(err))
	}
	return true
}

// disable latches the broadcaster off for the session. The error is surfaced
// once; later Start calls stay silent no-ops.
func (b *Broadcaster) disable(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return
	}
	b.disabled = true
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.logger.Error("location sampling unavailable", zap.Error(err))
	b.view.ShowError("Location sharing is unavailable: " + err.Error())
}
