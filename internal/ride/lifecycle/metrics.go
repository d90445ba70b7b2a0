package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_status_applied_total",
		Help: "Status updates applied, grouped by destination status.",
	}, []string{"status"})

	staleRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_status_stale_rejected_total",
		Help: "Status updates rejected because a newer version was already applied.",
	})
)
