package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes migration metrics
type Collector struct {
	documentsTotal  *prometheus.CounterVec
	batchesTotal    prometheus.Counter
	checkpointSaves prometheus.Counter
	stepDuration    prometheus.Histogram
	runningSteps    prometheus.Gauge
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		documentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_documents_total",
				Help: "Total number of source documents by outcome",
			},
			[]string{"outcome"},
		),
		batchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_batches_total",
				Help: "Total number of batches processed",
			},
		),
		checkpointSaves: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_checkpoint_saves_total",
				Help: "Total number of checkpoint writes",
			},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "migrate_step_duration_seconds",
				Help:    "Time taken to run a migration step",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		runningSteps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrate_running_steps",
				Help: "Number of steps currently running",
			},
		),
	}

	// Register metrics
	prometheus.MustRegister(c.documentsTotal)
	prometheus.MustRegister(c.batchesTotal)
	prometheus.MustRegister(c.checkpointSaves)
	prometheus.MustRegister(c.stepDuration)
	prometheus.MustRegister(c.runningSteps)

	return c
}

// BatchProcessed records one processed batch and its per-document outcomes
func (c *Collector) BatchProcessed(read, inserted, duplicates, errored int64) {
	c.batchesTotal.Inc()
	c.documentsTotal.WithLabelValues("read").Add(float64(read))
	c.documentsTotal.WithLabelValues("inserted").Add(float64(inserted))
	c.documentsTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	c.documentsTotal.WithLabelValues("error").Add(float64(errored))
}

// CheckpointSaved increments the checkpoint write counter
func (c *Collector) CheckpointSaved() {
	c.checkpointSaves.Inc()
}

// ObserveStepDuration observes a completed step's duration
func (c *Collector) ObserveStepDuration(duration time.Duration) {
	c.stepDuration.Observe(duration.Seconds())
}

// StepStarted marks a step as running
func (c *Collector) StepStarted() {
	c.runningSteps.Inc()
}

// StepFinished marks a step as no longer running
func (c *Collector) StepFinished() {
	c.runningSteps.Dec()
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}
