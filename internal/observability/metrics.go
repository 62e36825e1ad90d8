package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "photos_routed_total",
		Help:      "Total number of photos routed, by outcome",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "faces_detected_total",
		Help:      "Total number of face embeddings extracted from uploads",
	})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to an existing person",
	})

	PersonsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "persons_created_total",
		Help:      "Total number of persons created from unmatched faces",
	})

	MaterializeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "materialize_failures_total",
		Help:      "Total number of per-person collection placements that failed after retries",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facesort",
		Name:      "stage_duration_seconds",
		Help:      "Duration of routing stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	IntentsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "intents_dispatched_total",
		Help:      "Total number of chat intents dispatched, by action and status",
	}, []string{"action", "status"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facesort",
		Name:      "deliveries_total",
		Help:      "Total number of photo deliveries, by status",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facesort",
		Name:      "queue_depth",
		Help:      "Number of pending photo tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facesort",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facesort",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
