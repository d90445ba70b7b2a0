// Package view provides the agent's reference presenter. Real frontends own
// pixels; this one narrates the same affordances through the logger so the
// engine can run headless.
package view

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// LogView satisfies every view surface in the engine: the lifecycle
// presenter, the broadcaster error surface, the chat view, and the offer
// view.
type LogView struct {
	logger *zap.Logger

	mu    sync.Mutex
	input string
}

// NewLogView constructs the presenter.
func NewLogView(logger *zap.Logger) *LogView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogView{logger: logger.Named("view")}
}

func (v *LogView) ShowStatus(text string) { v.logger.Info("status", zap.String("text", text)) }
func (v *LogView) ShowError(text string)  { v.logger.Error("error", zap.String("text", text)) }

func (v *LogView) SetRequestVisible(visible bool) {
	v.logger.Debug("request affordance", zap.Bool("visible", visible))
}

func (v *LogView) BindPay(rideID uuid.UUID) {
	v.logger.Info("pay affordance bound", zap.String("ride_id", rideID.String()))
}

func (v *LogView) BindConfirm(rideID uuid.UUID) {
	v.logger.Info("confirm affordance bound", zap.String("ride_id", rideID.String()))
}

func (v *LogView) ClearActions() {}

func (v *LogView) DrawRoute(pickup, drop domain.GeoPoint) {
	v.logger.Info("route drawn",
		zap.Float64("pickup_lat", pickup.Lat), zap.Float64("pickup_lng", pickup.Lng),
		zap.Float64("drop_lat", drop.Lat), zap.Float64("drop_lng", drop.Lng))
}

func (v *LogView) UpdateCounterpartMarker(sample domain.LocationSample) {
	v.logger.Debug("counterpart moved",
		zap.String("role", string(sample.Role)),
		zap.Float64("lat", sample.Lat), zap.Float64("lng", sample.Lng))
}

func (v *LogView) Reset() { v.logger.Info("view reset") }

func (v *LogView) ShowMessages(messages []domain.ChatMessage) {
	v.logger.Info("conversation", zap.Int("messages", len(messages)))
}

func (v *LogView) ClearInput() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.input = ""
}

func (v *LogView) RestoreInput(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.input = text
}

func (v *LogView) ShowOffer(offer domain.RideSummary) {
	v.logger.Info("new ride offer",
		zap.String("ride_id", offer.RideID.String()),
		zap.String("from", offer.PickupAddress),
		zap.String("to", offer.DropAddress),
		zap.Float64("fare", offer.EstimatedFare))
}

func (v *LogView) SetAvailableCount(count int) {
	v.logger.Debug("available rides", zap.Int("count", count))
}
