// Package metrics exposes Prometheus instruments for backup, restore and
// retention runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "markabak"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics is safe to use through a nil pointer; every method is then a
// no-op.
type Metrics struct {
	backups          *prometheus.CounterVec
	restores         *prometheus.CounterVec
	backupDuration   prometheus.Histogram
	restoreDuration  prometheus.Histogram
	lastArtifactSize prometheus.Gauge
	lastSuccess      prometheus.Gauge
	retentionDeleted prometheus.Counter
	retentionErrors  prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		backups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup runs by result.",
		}, []string{"result"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore runs by result.",
		}, []string{"result"}),
		backupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of backup runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		restoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Wall time of restore runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastArtifactSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_artifact_size_bytes",
			Help:      "Size of the most recent successful artifact.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful backup.",
		}),
		retentionDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Artifacts removed by retention.",
		}),
		retentionErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_errors_total",
			Help:      "Artifacts retention failed to remove.",
		}),
	}
}

func (m *Metrics) ObserveBackup(d time.Duration, size int64, err error) {
	if m == nil {
		return
	}
	m.backupDuration.Observe(d.Seconds())
	if err != nil {
		m.backups.WithLabelValues(resultFailure).Inc()
		return
	}
	m.backups.WithLabelValues(resultSuccess).Inc()
	m.lastArtifactSize.Set(float64(size))
	m.lastSuccess.SetToCurrentTime()
}

func (m *Metrics) ObserveRestore(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.restoreDuration.Observe(d.Seconds())
	if err != nil {
		m.restores.WithLabelValues(resultFailure).Inc()
		return
	}
	m.restores.WithLabelValues(resultSuccess).Inc()
}

func (m *Metrics) ObserveRetention(deleted, failed int) {
	if m == nil {
		return
	}
	m.retentionDeleted.Add(float64(deleted))
	m.retentionErrors.Add(float64(failed))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
