// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal      *prometheus.CounterVec
	recordsParsedTotal     prometheus.Counter
	recordsInsertedTotal   prometheus.Counter
	notificationsSentTotal *prometheus.CounterVec
	imageCacheTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call
// multiple times.
func Init() {
	once.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lindol_pipeline_runs_total",
				Help: "Total pipeline runs, labeled by result (ok, stopped, failed).",
			},
			[]string{"result"},
		)

		recordsParsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lindol_records_parsed_total",
				Help: "Total event records parsed from bulletin pages.",
			},
		)

		recordsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lindol_records_inserted_total",
				Help: "Total event records newly persisted by the store.",
			},
		)

		notificationsSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lindol_notifications_sent_total",
				Help: "Total webhook notifications delivered, labeled by channel.",
			},
			[]string{"channel"},
		)

		imageCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lindol_image_cache_total",
				Help: "Image cache operations, labeled by outcome (hit, stored, failed).",
			},
			[]string{"outcome"},
		)
	})
}

// PipelineRun records the outcome of one pipeline run.
func PipelineRun(result string) {
	Init()
	pipelineRunsTotal.WithLabelValues(result).Inc()
}

// RecordsParsed adds to the parsed-record counter.
func RecordsParsed(n int) {
	Init()
	recordsParsedTotal.Add(float64(n))
}

// RecordsInserted adds to the inserted-record counter.
func RecordsInserted(n int) {
	Init()
	recordsInsertedTotal.Add(float64(n))
}

// NotificationsSent adds to the per-channel delivery counter.
func NotificationsSent(channel string, n int) {
	Init()
	notificationsSentTotal.WithLabelValues(channel).Add(float64(n))
}

// ImageCacheOutcome counts a single image cache operation.
func ImageCacheOutcome(outcome string) {
	Init()
	imageCacheTotal.WithLabelValues(outcome).Inc()
}
