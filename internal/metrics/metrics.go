// Package metrics holds Prometheus instrumentation for the data-preparation
// pipeline. Metrics register explicitly on a caller-supplied registry
// (no init()).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
)

// Pipeline bundles the nnprep pipeline metrics.
type Pipeline struct {
	DownloadBytes   prometheus.Counter
	DownloadResumes prometheus.Counter
	FetchDuration   prometheus.Histogram
}

// NewPipeline creates and registers the pipeline metrics.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nnprep",
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded for dataset archives",
		}),

		DownloadResumes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nnprep",
			Name:      "download_resumes_total",
			Help:      "Downloads resumed from a partial file",
		}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nnprep",
			Name:      "fetch_duration_seconds",
			Help:      "Dataset fetch duration",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 1800},
		}),
	}

	reg.MustRegister(m.DownloadBytes, m.DownloadResumes, m.FetchDuration)

	return m
}

// Serve exposes /metrics for Prometheus scrape during long-running commands.
// It serves the given registry, not the global default.
func Serve(port int, reg prometheus.Gatherer, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}
