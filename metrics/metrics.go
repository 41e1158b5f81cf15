// Package metrics holds the Prometheus collectors of the simulation service.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ideasim"

// Metrics groups the collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	cost            prometheus.Counter
	repairs         *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	personasDropped prometheus.Counter
}

// New creates a fresh registry with Go and process collectors plus the
// service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Gateway calls by prompt and outcome.",
		}, []string{"prompt_id", "outcome"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Gateway call latency by prompt.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"prompt_id"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		cost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated gateway spend in USD.",
		}),
		repairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_attempts_total",
			Help:      "Repair attempts issued after invalid model output.",
		}, []string{"prompt_id"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Simulation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_run_duration_seconds",
			Help:      "Wall time of a simulation run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		personasDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "personas_dropped_total",
			Help:      "Personas dropped from a run after a stage failure.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records one gateway call. A nil err counts as "ok".
func (m *Metrics) ObserveCall(promptID, model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(promptID, outcome).Inc()
	m.llmLatency.WithLabelValues(promptID).Observe(latency.Seconds())
	if err == nil {
		m.tokens.WithLabelValues(model, "input").Add(float64(inputTokens))
		m.tokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// AddCost adds usd to the spend counter.
func (m *Metrics) AddCost(usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.cost.Add(usd)
}

func (m *Metrics) ObserveRepair(promptID string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(promptID).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(mode, outcome string, duration time.Duration, dropped int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode, outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	if dropped > 0 {
		m.personasDropped.Add(float64(dropped))
	}
}
