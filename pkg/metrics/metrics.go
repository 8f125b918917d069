// Package metrics exposes prometheus instrumentation for the sale service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

var (
	// WorkerPasses counts completed reconciliation passes
	WorkerPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsale_worker_passes_total",
		Help: "Total reconciliation worker passes completed",
	})

	// OrdersCreated counts orders accepted by the intake API
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsale_orders_created_total",
		Help: "Total orders created",
	})

	// OrderTransitions counts order status transitions by target status
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsale_order_transitions_total",
		Help: "Total order status transitions",
	}, []string{"status"})

	// PoolExhausted counts reservation attempts that found no free address
	PoolExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsale_pool_exhausted_total",
		Help: "Total address reservations rejected for lack of capacity",
	}, []string{"method"})

	// AddressesSwept counts reservations reclaimed by the expiry sweep
	AddressesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsale_addresses_swept_total",
		Help: "Total expired address reservations released",
	})

	// ProviderErrors counts transient provider failures by provider name
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsale_provider_errors_total",
		Help: "Total provider transport errors",
	}, []string{"provider"})

	// SettlementDuration observes payout call latency in seconds
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vpcsale_settlement_duration_seconds",
		Help:    "Settlement payout call duration",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns a gin handler serving the prometheus registry
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
