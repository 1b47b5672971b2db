package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Input rows
	// ============================================
	RowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_rows_processed_total",
		Help: "Total number of input rows turned into allocations",
	})

	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_rows_rejected_total",
			Help: "Total number of input rows rejected, by reason",
		},
		[]string{"reason"},
	)

	HighAmountWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_high_amount_warnings_total",
		Help: "Total number of amounts at or above the high amount threshold",
	})

	// ============================================
	// Claim registry
	// ============================================
	RegistryCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_registry_calls_total",
			Help: "Total number of claim registry calls",
		},
		[]string{"method", "status"},
	)

	RegistryCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocation_registry_call_duration_seconds",
			Help:    "Claim registry call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ============================================
	// Reports
	// ============================================
	ReportGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_report_generation_duration_seconds",
		Help:    "End to end report generation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_reports_generated_total",
			Help: "Total number of report generation runs, by result",
		},
		[]string{"result"},
	)

	ReportLastMaximumID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_report_last_maximum_id",
		Help: "Maximum allocation id of the last generated report",
	})

	ReportLastAllocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_report_last_allocations",
		Help: "Number of allocations in the last generated report",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_events_published_total",
			Help: "Total number of report events published, by status",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes every registered metric to path in the text exposition
// format, for pickup by the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
