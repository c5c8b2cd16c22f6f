package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOperations counts completed sync runs by content type and status
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_sync_operations_total",
			Help: "Number of completed sync operations",
		},
		[]string{"content_type", "status"},
	)

	// SyncDuration tracks sync run duration by content type
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "haven_sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"content_type"},
	)

	// SyncBytes counts bytes synced by content type
	SyncBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_sync_bytes_total",
			Help: "Bytes synced to local storage",
		},
		[]string{"content_type"},
	)

	// ScheduledTicks counts scheduler ticks by task and outcome
	ScheduledTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_scheduled_ticks_total",
			Help: "Scheduler tick outcomes (run, skipped, failed)",
		},
		[]string{"task", "outcome"},
	)

	// OperationDuration tracks monitored operation duration by name
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "haven_operation_duration_seconds",
			Help: "Duration of monitored operations in seconds",
		},
		[]string{"operation"},
	)

	// ActiveOperations tracks progress trackers currently live
	ActiveOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "haven_active_operations",
			Help: "Number of active progress-tracked operations",
		},
	)

	// NotificationsSent counts webhook notifications by status
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_notifications_sent_total",
			Help: "Number of webhook notifications attempted",
		},
		[]string{"status"},
	)

	// HealthCheckStatus reports the latest health state per component
	// (1 = up, 0.5 = degraded, 0 = down)
	HealthCheckStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "haven_health_check_status",
			Help: "Latest health check status per component",
		},
		[]string{"component"},
	)
)
