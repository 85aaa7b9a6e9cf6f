package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GateMovementsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_movements_created_total",
			Help: "Gate entries created, by movement type",
		},
		[]string{"movement_type"},
	)

	GateEntryNumbersIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_entry_numbers_issued_total",
			Help: "Gate entry numbers issued, by warehouse",
		},
		[]string{"warehouse_code"},
	)

	SequenceRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_sequence_rejections_total",
			Help: "Movements rejected because they did not alternate",
		},
	)

	RecordEdits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_edits_total",
			Help: "Successful edits, by record kind",
		},
		[]string{"record"},
	)

	EditRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_edit_rejections_total",
			Help: "Rejected edits, by reason",
		},
		[]string{"reason"},
	)

	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_live_clients",
			Help: "Connected live feed websocket clients",
		},
	)
)
