// Package metrics holds the Prometheus collectors shared by every binary in
// the pipeline (orchestrator, downloader, uploader, resolver).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pixav",
		Name:      "queue_depth",
		Help:      "Current depth of a broker queue.",
	}, []string{"queue"})

	TasksDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "tasks_dispatched_total",
		Help:      "Total tasks handed to a stage queue by the orchestrator.",
	}, []string{"stage"})

	TaskOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "task_outcomes_total",
		Help:      "Total task completions by stage and outcome (complete, retry, failed).",
	}, []string{"stage", "outcome"})

	TaskRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "task_retry_total",
		Help:      "Total task retries by stage.",
	}, []string{"stage"})

	DLQPushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "dlq_pushes_total",
		Help:      "Total tasks pushed to the dead letter queue by stage.",
	}, []string{"stage"})

	DLQReplaysTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "dlq_replays_total",
		Help:      "Total DLQ items replayed back onto their stage queue.",
	}, []string{"stage"})

	OrphanTasksReapedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "orphan_tasks_reaped_total",
		Help:      "Total tasks reset by the orchestrator's orphan garbage collector, by prior state.",
	}, []string{"state"})

	BackpressureSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "backpressure_skips_total",
		Help:      "Total scheduling passes skipped because a queue was under backpressure.",
	})

	NoActiveAccountsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "no_active_accounts_total",
		Help:      "Total upload dispatch attempts that found no account with spare daily quota.",
	})

	AccountQuotaUsedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pixav",
		Name:      "account_quota_used_bytes",
		Help:      "Bytes uploaded today by account, against its daily quota.",
	}, []string{"account"})

	TorrentDownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "torrent_download_duration_seconds",
		Help:      "Duration from magnet add to a fully downloaded torrent.",
		Buckets:   []float64{5, 15, 30, 60, 300, 900, 1800, 3600},
	})

	TorrentFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "torrent_failures_total",
		Help:      "Total torrent add/wait failures.",
	})

	RemuxDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "remux_duration_seconds",
		Help:      "Duration of the ffmpeg stream-copy remux step.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "upload_duration_seconds",
		Help:      "Duration of a full upload task (runtime start through verify).",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})

	RuntimeReadyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "upload_runtime_ready_duration_seconds",
		Help:      "Duration from runtime creation to readiness.",
		Buckets:   []float64{1, 2, 5, 10, 30, 60},
	})

	ResolverCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "resolver_cache_hits_total",
		Help:      "Total resolver requests served from the CDN URL cache.",
	})

	ResolverCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "resolver_cache_misses_total",
		Help:      "Total resolver requests that missed the CDN URL cache.",
	})

	ResolverExternalFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixav",
		Name:      "resolver_external_fetch_duration_seconds",
		Help:      "Duration of external share-url resolve HTTP calls.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 10, 15},
	})

	ResolverExternalFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixav",
		Name:      "resolver_external_failures_total",
		Help:      "Total external resolve failures by reason (fetch, parse).",
	}, []string{"reason"})
)

// Register attaches every collector to reg. Each binary calls this once
// against its own prometheus.Registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QueueDepth,
		TasksDispatchedTotal,
		TaskOutcomesTotal,
		TaskRetryTotal,
		DLQPushesTotal,
		DLQReplaysTotal,
		OrphanTasksReapedTotal,
		BackpressureSkipsTotal,
		NoActiveAccountsTotal,
		AccountQuotaUsedBytes,
		TorrentDownloadDuration,
		TorrentFailuresTotal,
		RemuxDuration,
		UploadDuration,
		RuntimeReadyDuration,
		ResolverCacheHitsTotal,
		ResolverCacheMissesTotal,
		ResolverExternalFetchDuration,
		ResolverExternalFailuresTotal,
	)
}
