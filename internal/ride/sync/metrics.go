package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_poll_errors_total",
		Help: "Transient failures of the ride poll loop.",
	})

	pushMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_push_messages_total",
		Help: "Messages received on the ride push subscription, by type.",
	}, []string{"type"})

	notifyReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_stream_reconnects_total",
		Help: "Reconnect attempts of the driver notification stream.",
	})
)
