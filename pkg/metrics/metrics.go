// Package metrics provides Prometheus metrics for ideaftp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaftp_connects_total",
			Help: "Total connection attempts",
		},
		[]string{"protocol", "status"},
	)

	connectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideaftp_connect_duration_seconds",
			Help:    "Time to establish a connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaftp_transfers_total",
			Help: "Total file transfers",
		},
		[]string{"direction", "status"},
	)

	transferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaftp_transfer_bytes_total",
			Help: "Total bytes transferred",
		},
		[]string{"direction"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideaftp_transfer_duration_seconds",
			Help:    "File transfer duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	dirsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ideaftp_remote_dirs_created_total",
			Help: "Remote directories created while ensuring upload targets",
		},
	)

	listingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaftp_listings_total",
			Help: "Total remote directory listings",
		},
		[]string{"status"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordConnect records a connection attempt.
func RecordConnect(protocol string, duration time.Duration, success bool) {
	connectsTotal.WithLabelValues(protocol, status(success)).Inc()
	if success {
		connectDuration.WithLabelValues(protocol).Observe(duration.Seconds())
	}
}

// RecordTransfer records an upload or download.
func RecordTransfer(direction string, bytes int64, duration time.Duration, success bool) {
	transfersTotal.WithLabelValues(direction, status(success)).Inc()
	transferBytes.WithLabelValues(direction).Add(float64(bytes))
	transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordDirsCreated records remote directories created by an ensure.
func RecordDirsCreated(n int) {
	dirsCreatedTotal.Add(float64(n))
}

// RecordListing records a directory listing.
func RecordListing(success bool) {
	listingsTotal.WithLabelValues(status(success)).Inc()
}

// WriteFile writes all registered metrics in the text exposition format,
// suitable for the node_exporter textfile collector.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
