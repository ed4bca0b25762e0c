// Package metrics exposes Prometheus counters for the risk pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Stage labels for pipeline metrics.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageScore   = "score"
	StageAlert   = "alert"
)

// Registry holds all Prometheus metrics for the pipeline.
type Registry struct {
	reg *prometheus.Registry

	ArticlesFetched    prometheus.Counter
	ArticlesNew        prometheus.Counter
	ArticlesDuplicate  prometheus.Counter
	ArticlesInvalid    prometheus.Counter
	ArticlesIrrelevant prometheus.Counter

	StageProcessed *prometheus.CounterVec
	StageErrors    *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	LLMCalls    *prometheus.CounterVec
	LLMFailures *prometheus.CounterVec

	AlertsCreated       *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	InvariantViolations prometheus.Counter
}

// NewRegistry creates and registers all pipeline metrics on a private
// Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		ArticlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_articles_fetched_total",
			Help: "Articles returned by the news source",
		}),
		ArticlesNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_articles_new_total",
			Help: "Novel articles admitted to the pipeline",
		}),
		ArticlesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_articles_duplicate_total",
			Help: "Articles dropped by the dedup index",
		}),
		ArticlesInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_articles_invalid_total",
			Help: "Articles dropped by field validation",
		}),
		ArticlesIrrelevant: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_articles_irrelevant_total",
			Help: "Articles rejected by the relevance gate",
		}),

		StageProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_stage_processed_total",
			Help: "Records handled per pipeline stage",
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_stage_errors_total",
			Help: "Handler errors per pipeline stage",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainwatch_stage_duration_seconds",
			Help:    "Handler duration per pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_llm_calls_total",
			Help: "LLM calls by model tier",
		}, []string{"model"}),
		LLMFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_llm_failures_total",
			Help: "Failed LLM calls by model tier",
		}, []string{"model"}),

		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_alerts_created_total",
			Help: "Alerts written by severity band",
		}, []string{"band"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_notifications_sent_total",
			Help: "Notifications delivered by channel",
		}, []string{"channel"}),
		InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainwatch_invariant_violations_total",
			Help: "Score components clamped back into range",
		}),
	}

	r.reg.MustRegister(
		r.ArticlesFetched, r.ArticlesNew, r.ArticlesDuplicate, r.ArticlesInvalid, r.ArticlesIrrelevant,
		r.StageProcessed, r.StageErrors, r.StageDuration,
		r.LLMCalls, r.LLMFailures,
		r.AlertsCreated, r.NotificationsSent, r.InvariantViolations,
	)
	return r
}

// Handler serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveFetchCycle records one fetch cycle's counts.
func (r *Registry) ObserveFetchCycle(fetched, fresh, duplicates, invalid int) {
	r.ArticlesFetched.Add(float64(fetched))
	r.ArticlesNew.Add(float64(fresh))
	r.ArticlesDuplicate.Add(float64(duplicates))
	r.ArticlesInvalid.Add(float64(invalid))
}

// StageTimer times one handler invocation.
type StageTimer struct {
	registry *Registry
	stage    string
	start    time.Time
}

// StartStage begins timing a stage handler.
func (r *Registry) StartStage(stage string) *StageTimer {
	return &StageTimer{registry: r, stage: stage, start: time.Now()}
}

// Done records the outcome. Call with the handler's returned error.
func (t *StageTimer) Done(err error) {
	elapsed := time.Since(t.start)
	t.registry.StageDuration.WithLabelValues(t.stage).Observe(elapsed.Seconds())
	t.registry.StageProcessed.WithLabelValues(t.stage).Inc()
	if err != nil {
		t.registry.StageErrors.WithLabelValues(t.stage).Inc()
		log.Debug().Str("stage", t.stage).Dur("duration", elapsed).Err(err).Msg("stage handler failed")
	}
}
