package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Model calls in the pipeline run from about a second to a few minutes.
//
//nolint:gochecknoglobals
var durationBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300}

// PrometheusRecorder exports per-call counters labelled by model and pipeline
// stage. Session ids stay out of the labels to bound cardinality.
type PrometheusRecorder struct {
	requests *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the llm_* series on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Model calls by model, pipeline stage, status and error class.",
		}, []string{"model", "agent", "status", "error_type"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Tokens reported by the provider, split into prompt and completion.",
		}, []string{"model", "agent", "type"}),
		cost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_costs_total",
			Help: "Estimated USD spend from the model catalogue prices.",
		}, []string{"model", "agent"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Wall time of one model call including retries.",
			Buckets: durationBuckets,
		}, []string{"model", "agent"}),
	}
}

// ObserveRequest implements Recorder. Tokens and cost are only counted for
// successful calls.
func (p *PrometheusRecorder) ObserveRequest(
	model, _, agent string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	p.duration.WithLabelValues(model, agent).Observe(duration.Seconds())
	if !success {
		p.requests.WithLabelValues(model, agent, statusError, errorType).Inc()
		return
	}
	p.requests.WithLabelValues(model, agent, statusSuccess, "").Inc()
	p.tokens.WithLabelValues(model, agent, "prompt").Add(float64(promptTokens))
	p.tokens.WithLabelValues(model, agent, "completion").Add(float64(completionTokens))
	p.cost.WithLabelValues(model, agent).Add(cost)
}
