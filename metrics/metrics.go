package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debate_tab"

// Recorder counts engine events. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	roundsPaired     *prometheus.CounterVec
	roundsClosed     *prometheus.CounterVec
	resultsRejected  *prometheus.CounterVec
	knockoutRounds   *prometheus.CounterVec
	championsDecided prometheus.Counter
	publishFailures  prometheus.Counter
}

// NewRecorder registers the engine counters on reg. With a nil reg a fresh registry
// carrying the Go and process collectors is created.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		roundsPaired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_paired_total",
			Help:      "Rounds whose rooms were drawn, by phase.",
		}, []string{"phase"}),
		roundsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_closed_total",
			Help:      "Rounds closed and aggregated into standings, by phase.",
		}, []string{"phase"}),
		resultsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_rejected_total",
			Help:      "Result submissions rejected, by reason.",
		}, []string{"reason"}),
		knockoutRounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knockout_rounds_created_total",
			Help:      "Knockout rounds seeded or advanced, by phase name.",
		}, []string{"phase_name"}),
		championsDecided: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "champions_decided_total",
			Help:      "Tournaments closed with a champion.",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "standings_publish_failures_total",
			Help:      "Standings snapshots that failed to upload.",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func phaseLabel(knockout bool) string {
	if knockout {
		return "knockout"
	}
	return "prelim"
}

func (r *Recorder) RoundPaired(knockout bool) {
	if r == nil {
		return
	}
	r.roundsPaired.WithLabelValues(phaseLabel(knockout)).Inc()
}

func (r *Recorder) RoundClosed(knockout bool) {
	if r == nil {
		return
	}
	r.roundsClosed.WithLabelValues(phaseLabel(knockout)).Inc()
}

func (r *Recorder) ResultsRejected(reason string) {
	if r == nil {
		return
	}
	r.resultsRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) KnockoutRoundCreated(phaseName string) {
	if r == nil {
		return
	}
	r.knockoutRounds.WithLabelValues(phaseName).Inc()
}

func (r *Recorder) ChampionDecided() {
	if r == nil {
		return
	}
	r.championsDecided.Inc()
}

func (r *Recorder) PublishFailed() {
	if r == nil {
		return
	}
	r.publishFailures.Inc()
}
