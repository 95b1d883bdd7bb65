// Package metrics provides Prometheus metrics for the audiodrive backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audiodrive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	driveCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_drive_calls_total",
			Help: "Calls made to the Google Drive API",
		},
		[]string{"op", "result"},
	)

	driveCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audiodrive_drive_call_duration_seconds",
			Help:    "Google Drive API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	treeNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audiodrive_tree_nodes",
			Help:    "Number of nodes returned by a tree enumeration",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	archiveEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiodrive_archive_entries_total",
			Help: "Files appended to folder archives",
		},
	)

	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_archives_total",
			Help: "Folder archive requests by outcome",
		},
		[]string{"result"},
	)

	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiodrive_content_bytes_downloaded_total",
			Help: "Bytes streamed to clients from single file downloads",
		},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_analyses_total",
			Help: "Audio analyses by outcome",
		},
		[]string{"result"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audiodrive_analysis_duration_seconds",
			Help:    "Wall time of one audio analysis including download",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	batchFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_batch_files_total",
			Help: "Files handled by folder batch analyses by status",
		},
		[]string{"status"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiodrive_auth_attempts_total",
			Help: "Login attempts",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func RecordDriveCall(op string, err error, elapsed time.Duration) {
	driveCallsTotal.WithLabelValues(op, result(err)).Inc()
	driveCallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func RecordTreeSize(nodes int) {
	treeNodes.Observe(float64(nodes))
}

func RecordArchive(entries int, err error) {
	archiveEntriesTotal.Add(float64(entries))
	archivesTotal.WithLabelValues(result(err)).Inc()
}

func RecordContentDownload(bytes int64) {
	contentBytesDownloaded.Add(float64(bytes))
}

func RecordAnalysis(err error, elapsed time.Duration) {
	analysesTotal.WithLabelValues(result(err)).Inc()
	analysisDuration.Observe(elapsed.Seconds())
}

func RecordBatchFile(status string) {
	batchFilesTotal.WithLabelValues(status).Inc()
}

func RecordAuthAttempt(success bool) {
	if success {
		authAttemptsTotal.WithLabelValues("success").Inc()
		return
	}
	authAttemptsTotal.WithLabelValues("failure").Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
