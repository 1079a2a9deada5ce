// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry is shared by the HTTP server and the CLI.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ClipTotal, ClipDuration, ClipsActive,
		DownloadBytes,
		ProvisionTotal, ProvisionDuration,
	)
}

// ClipTotal counts finished clip jobs by outcome.
var ClipTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trimit_clip_total",
		Help: "Finished clip jobs by outcome.",
	},
	[]string{"outcome"}, // done | failed | cancelled | rejected
)

// ClipDuration is wall time per clip job by stage reached.
var ClipDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trimit_clip_duration_seconds",
		Help:    "Clip job wall time in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	},
	[]string{"outcome"},
)

// ClipsActive is the number of clip jobs currently running.
var ClipsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "trimit_clips_active",
	Help: "Clip jobs currently running.",
})

// DownloadBytes counts bytes written by source and archive downloads.
var DownloadBytes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trimit_download_bytes_total",
		Help: "Bytes downloaded to local disk.",
	},
	[]string{"kind"}, // source | archive
)

// ProvisionTotal counts provisioning runs by result.
var ProvisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trimit_provision_total",
		Help: "Provisioning runs by terminal state and failure kind.",
	},
	[]string{"result"}, // found | installed | failed_<kind>
)

// ProvisionDuration is wall time per provisioning run.
var ProvisionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "trimit_provision_duration_seconds",
	Help:    "Provisioning run wall time in seconds.",
	Buckets: []float64{0.01, 0.1, 1, 10, 30, 60, 180, 600},
})

// Handler serves DefaultRegistry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{})
}

// WritePrometheus writes the text exposition format to w.
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
