// Package metrics exposes Prometheus metrics about pipeline runs. Every App
// owns its own registry so parallel runs in tests never collide.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/biolockgo/internal/monitor"
)

const namespace = "biolock"

// Recorder records stage and batch metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stagesCompleted *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	batchScripts    *prometheus.GaugeVec
	pipelineRuns    *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stagesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_completed_total",
			Help:      "Stages that finished successfully.",
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stages that failed.",
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of stage execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"stage"}),
		batchScripts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_scripts",
			Help:      "Worker scripts of the current batch by state.",
		}, []string{"script", "state"}),
		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
	}
}

// StageCompleted records a successful stage.
func (r *Recorder) StageCompleted(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stagesCompleted.WithLabelValues(stage).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// StageFailed records a failed stage.
func (r *Recorder) StageFailed(stage string) {
	if r == nil {
		return
	}
	r.stageFailures.WithLabelValues(stage).Inc()
}

// PipelineFinished records the outcome of a run: "complete" or "failed".
func (r *Recorder) PipelineFinished(outcome string) {
	if r == nil {
		return
	}
	r.pipelineRuns.WithLabelValues(outcome).Inc()
}

// BatchProgress implements monitor.Observer.
func (r *Recorder) BatchProgress(script string, c monitor.Counts) {
	if r == nil {
		return
	}
	script = strings.TrimSuffix(script, ".sh")
	r.batchScripts.WithLabelValues(script, "success").Set(float64(c.Success))
	r.batchScripts.WithLabelValues(script, "failed").Set(float64(c.Failed))
	r.batchScripts.WithLabelValues(script, "running").Set(float64(c.Running()))
	r.batchScripts.WithLabelValues(script, "queued").Set(float64(c.Queued()))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
