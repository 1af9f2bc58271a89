package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_tasks_queued_total",
		Help: "Total number of install tasks queued",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_tasks_completed_total",
		Help: "Total number of install tasks completed",
	})

	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_installer_tasks_failed_total",
		Help: "Total number of install tasks failed, by reason",
	}, []string{"reason"})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_tasks_cancelled_total",
		Help: "Total number of install tasks cancelled by the user",
	})

	ActiveExecutors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_installer_active_executors",
		Help: "Number of pipeline executors currently running",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "game_installer_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_download_bytes_total",
		Help: "Total bytes downloaded",
	})

	DownloadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_download_retries_total",
		Help: "Total number of download retries after a transient failure",
	})

	ObserverFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_installer_observer_failures_total",
		Help: "Total number of observer callbacks that panicked",
	})

	ArtworkFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_installer_artwork_fetched_total",
		Help: "Total number of artwork assets written, by category",
	}, []string{"category"})
)

// FailureReason collapses free-form failure messages into a bounded label set.
func FailureReason(message string) string {
	switch message {
	case "download failed", "extraction failed", "console not found", "cancelled by user", "game directory is busy":
		return message
	default:
		return "other"
	}
}
