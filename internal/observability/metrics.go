package observability

import (
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest/pipeline"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics for digest runs. It satisfies
// pipeline.Observer so the orchestrator can feed it directly.
type Collector struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Concepts      *prometheus.CounterVec
	Dropped       prometheus.Counter
	InFlight      prometheus.Gauge
}

// NewCollector registers every metric on a private registry so tests can
// build as many collectors as they like.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Digest runs by outcome and failure kind",
		},
		[]string{"outcome", "kind"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "outcome"},
	)
	concepts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concepts_total",
			Help:      "Concepts reported by completed runs",
		},
		[]string{"status"},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped before reaching the result",
		},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing",
		},
	)

	registry.MustRegister(runs, stageDuration, concepts, dropped, inFlight)

	return &Collector{
		registry:      registry,
		Runs:          runs,
		StageDuration: stageDuration,
		Concepts:      concepts,
		Dropped:       dropped,
		InFlight:      inFlight,
	}
}

func (c *Collector) StageStarted(run *pipeline.Run, stage pipeline.State) {
	if stage == pipeline.StateExtracting {
		c.InFlight.Inc()
	}
}

func (c *Collector) StageFinished(run *pipeline.Run, stage pipeline.State, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.StageDuration.WithLabelValues(string(stage), outcome).Observe(elapsed.Seconds())
}

func (c *Collector) RunFinished(run *pipeline.Run, result *pipeline.Result, err error) {
	c.InFlight.Dec()
	if err != nil {
		c.Runs.WithLabelValues("failed", string(apperr.KindOf(err))).Inc()
		return
	}
	c.Runs.WithLabelValues("done", "").Inc()
	c.Concepts.WithLabelValues("new").Add(float64(result.Stats.New))
	c.Concepts.WithLabelValues("known").Add(float64(result.Stats.Known))
	c.Dropped.Add(float64(result.Stats.Dropped))
}

func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
