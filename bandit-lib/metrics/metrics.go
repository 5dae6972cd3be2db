// Package metrics exposes Prometheus metrics for Bandit operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstalledGames tracks how many titles the state store currently knows.
	InstalledGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bandit_installed_games",
		Help: "Number of games with a recorded install location.",
	})

	// Downloads counts terminal download outcomes by result.
	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_downloads_total",
		Help: "Total number of finished downloads.",
	}, []string{"result"}) // result: success, cancelled, failed

	// BytesTransferred counts bytes read from the archive stream.
	BytesTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bandit_download_bytes_total",
		Help: "Total bytes transferred by the streaming installer.",
	})

	// InstallDuration observes how long successful installs take.
	InstallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bandit_install_duration_seconds",
		Help:    "Duration of successful download-and-extract operations.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// Uninstalls counts uninstall outcomes by result.
	Uninstalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_uninstalls_total",
		Help: "Total number of uninstall operations.",
	}, []string{"result"}) // result: removed, stale, failed

	// Moves counts move outcomes by result.
	Moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_moves_total",
		Help: "Total number of move operations.",
	}, []string{"result"}) // result: moved, no_space, failed
)

// RecordDownload records a terminal download outcome.
func RecordDownload(result string) {
	Downloads.WithLabelValues(result).Inc()
}

// RecordInstallDuration records the time taken by a successful install.
func RecordInstallDuration(start time.Time) {
	InstallDuration.Observe(time.Since(start).Seconds())
}
