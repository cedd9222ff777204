// Package observability holds the Prometheus collectors and OpenTelemetry setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundsphere_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records store latency by operation and collection.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundsphere_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CampaignTransitions counts campaign status changes.
	CampaignTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundsphere_campaign_transitions_total",
		Help: "Total number of campaign status transitions",
	}, []string{"from", "to"})

	// MediaUploads counts ingested files by blob store and result.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundsphere_media_uploads_total",
		Help: "Total number of media files processed by the ingestion pipeline",
	}, []string{"store", "result"})

	// MediaUploadBytes records the size of accepted media files.
	MediaUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fundsphere_media_upload_bytes",
		Help:    "Size of accepted media uploads in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7),
	})

	// DraftsPurged counts campaigns removed by the draft purge.
	DraftsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundsphere_drafts_purged_total",
		Help: "Total number of draft campaigns deleted by administrators",
	})

	// CascadeDeletes counts user cascade deletions by result.
	CascadeDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundsphere_cascade_deletes_total",
		Help: "Total number of user cascade deletions by result",
	}, []string{"result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
