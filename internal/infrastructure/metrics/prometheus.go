// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/messaging"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/scheduler"
)

const namespace = "studyplan_pvp"

// Recorder implements command.Metrics and the HTTP request metrics.
type Recorder struct {
	registry *prometheus.Registry

	matchesCreated     *prometheus.CounterVec
	answersSubmitted   *prometheus.CounterVec
	matchesResolved    *prometheus.CounterVec
	resolutionAttempts *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	queueJoins         *prometheus.CounterVec
	sweepResolved      prometheus.Counter
	sweepFailed        prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
	eventHandlers   *prometheus.CounterVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

var (
	_ command.Metrics    = (*Recorder)(nil)
	_ messaging.Observer = (*Recorder)(nil)
	_ scheduler.Observer = (*Recorder)(nil)
)

// NewRecorder registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		matchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_created_total",
			Help: "Matches created, by source (targeted, queue).",
		}, []string{"source"}),
		answersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "answers_submitted_total",
			Help: "Answer submissions, by outcome.",
		}, []string{"outcome"}),
		matchesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_resolved_total",
			Help: "Matches moved to COMPLETED, by result and reason.",
		}, []string{"result", "reason"}),
		resolutionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resolution_attempts_total",
			Help: "Resolution attempts, by outcome (won, lost, slot_changed, not_ready).",
		}, []string{"outcome"}),
		resolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolution_duration_seconds",
			Help:    "Time spent in a winning resolution including the rating transaction.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		queueJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_joins_total",
			Help: "Random queue joins, by whether a pair was formed.",
		}, []string{"paired"}),
		sweepResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_resolved_total",
			Help: "Expired matches resolved by the timeout sweeper.",
		}),
		sweepFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_failed_total",
			Help: "Expired matches the sweeper failed to resolve.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests, by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Domain events published on the in-process bus, by type.",
		}, []string{"type"}),
		eventHandlers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_handler_runs_total",
			Help: "Event handler runs, by event type and outcome (ok, error).",
		}, []string{"type", "outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduler_job_runs_total",
			Help: "Background job runs, by job and outcome (ok, error).",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scheduler_job_duration_seconds",
			Help:    "Background job run time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"job"}),
	}

	reg.MustRegister(
		r.matchesCreated, r.answersSubmitted, r.matchesResolved,
		r.resolutionAttempts, r.resolutionDuration, r.queueJoins,
		r.sweepResolved, r.sweepFailed, r.httpRequests, r.httpDuration,
		r.eventsPublished, r.eventHandlers, r.jobRuns, r.jobDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RegisterGauge exposes a value computed at scrape time, e.g. queue size.
func (r *Recorder) RegisterGauge(name, help string, fn func() float64) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

func (r *Recorder) MatchCreated(source string)     { r.matchesCreated.WithLabelValues(source).Inc() }
func (r *Recorder) AnswerSubmitted(outcome string) { r.answersSubmitted.WithLabelValues(outcome).Inc() }
func (r *Recorder) ResolutionAttempt(outcome string) {
	r.resolutionAttempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) MatchResolved(result, reason string) {
	r.matchesResolved.WithLabelValues(result, reason).Inc()
}

func (r *Recorder) ResolutionDuration(d time.Duration) {
	r.resolutionDuration.Observe(d.Seconds())
}

func (r *Recorder) QueueJoined(paired bool) {
	r.queueJoins.WithLabelValues(strconv.FormatBool(paired)).Inc()
}

func (r *Recorder) SweepCompleted(resolved, failed int) {
	r.sweepResolved.Add(float64(resolved))
	r.sweepFailed.Add(float64(failed))
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (r *Recorder) EventPublished(eventType string) {
	r.eventsPublished.WithLabelValues(eventType).Inc()
}

func (r *Recorder) EventHandled(eventType string, _ time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.eventHandlers.WithLabelValues(eventType, outcome).Inc()
}

func (r *Recorder) JobFinished(name string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.jobRuns.WithLabelValues(name, outcome).Inc()
	r.jobDuration.WithLabelValues(name).Observe(took.Seconds())
}
