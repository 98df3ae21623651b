// Package metrics records pipeline-level Prometheus metrics and renders any
// registry in the text exposition format.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Stage outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeFallback = "fallback"
)

// Pipeline holds the orchestrator's metrics. A nil *Pipeline is a valid no-op
// recorder.
type Pipeline struct {
	agentRuns     *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	agentTokens   *prometheus.CounterVec
	halts         prometheus.Counter
	fallbacks     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	budgetUsed    prometheus.Gauge
}

// NewPipeline registers the pipeline metrics on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)
	return &Pipeline{
		agentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_agent_runs_total",
				Help: "Stage executions by agent and outcome",
			},
			[]string{"agent", "outcome"},
		),
		agentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_agent_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"agent"},
		),
		agentTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_agent_tokens_total",
				Help: "Tokens charged to the session budget by agent",
			},
			[]string{"agent"},
		),
		halts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_halts_total",
			Help: "Runs halted awaiting answers to mandatory questions",
		}),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fallbacks_total",
				Help: "Stage failures replaced by the stage default",
			},
			[]string{"agent"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Run and resume calls by final state",
			},
			[]string{"state"},
		),
		budgetUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_budget_used_ratio",
			Help: "Fraction of the token budget used by the most recent session",
		}),
	}
}

// ObserveStage records one stage execution.
func (p *Pipeline) ObserveStage(agent, outcome string, d time.Duration, tokens int) {
	if p == nil {
		return
	}
	p.agentRuns.WithLabelValues(agent, outcome).Inc()
	p.agentDuration.WithLabelValues(agent).Observe(d.Seconds())
	if tokens > 0 {
		p.agentTokens.WithLabelValues(agent).Add(float64(tokens))
	}
}

// ObserveFallback counts a default applied in place of a failed stage.
func (p *Pipeline) ObserveFallback(agent string) {
	if p == nil {
		return
	}
	p.fallbacks.WithLabelValues(agent).Inc()
}

// ObserveHalt counts a halted run.
func (p *Pipeline) ObserveHalt() {
	if p == nil {
		return
	}
	p.halts.Inc()
}

// ObserveRun counts a finished Run or Resume by state and records the budget
// usage ratio (0 when the budget is unlimited).
func (p *Pipeline) ObserveRun(state string, budgetRatio float64) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(state).Inc()
	p.budgetUsed.Set(budgetRatio)
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
