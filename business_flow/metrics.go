package businessflow

import (
	"github.com/amirphl/wa-pool/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolTotalGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channel_pool_total",
		Help: "Pool-owned channels at the last stats read",
	})
	poolAvailableGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channel_pool_available",
		Help: "Unassigned pool channels at the last stats read",
	})
	poolAssignedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channel_pool_assigned",
		Help: "Assigned pool channels at the last stats read",
	})

	assignConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_assign_conflicts_total",
		Help: "Conditional assignments that lost the race",
	})

	// result: created, gateway_error, store_error
	provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_provision_total",
		Help: "Channel creation units by outcome",
	}, []string{"result"})

	// result: ok, gateway_error, store_error
	statusChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_status_checks_total",
		Help: "Status reconciliations by outcome",
	}, []string{"result"})
)

func observePoolStats(stats *models.PoolStats) {
	if stats == nil {
		return
	}
	poolTotalGauge.Set(float64(stats.Total))
	poolAvailableGauge.Set(float64(stats.Available))
	poolAssignedGauge.Set(float64(stats.Assigned))
}
