package revocation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FastTierAvailable is 1 while the cache tier is considered reachable.
	FastTierAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "revocation_fast_tier_available",
			Help: "Whether the revocation cache tier is currently used (1) or bypassed (0)",
		},
	)

	// Lookups counts Contains answers by the tier that produced them.
	Lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revocation_lookups_total",
			Help: "Total number of revocation lookups by answering tier and result",
		},
		[]string{"tier", "result"},
	)

	// FastTierErrors counts cache tier failures that were absorbed.
	FastTierErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revocation_fast_tier_errors_total",
			Help: "Total number of revocation cache errors that fell back to the durable tier",
		},
		[]string{"operation"},
	)
)

// ObserveAvailability exports an availability transition.
func ObserveAvailability(a Availability) {
	if a == Available {
		FastTierAvailable.Set(1)
		return
	}
	FastTierAvailable.Set(0)
}
