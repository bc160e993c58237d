// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_requests_created_total",
			Help: "Total number of approval requests created",
		},
		[]string{"kind"},
	)

	RequestsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_requests_resolved_total",
			Help: "Total number of approval requests resolved",
		},
		[]string{"kind", "resolution"},
	)

	RequestsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_requests_cancelled_total",
			Help: "Total number of approval requests cancelled",
		},
		[]string{"kind"},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_dispatch_failures_total",
			Help: "Side-effect failures after a durable status change, pending manual reconciliation",
		},
		[]string{"kind", "resolution"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "approval_operation_duration_seconds",
			Help: "Duration of engine operations in seconds",
		},
		[]string{"operation"},
	)
)
