package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	actionsQueuedTotal    *prometheus.CounterVec
	actionDecisionsTotal  *prometheus.CounterVec
	actionExecutionsTotal *prometheus.CounterVec
	actionsExpiredTotal   prometheus.Counter
	notificationFailures  *prometheus.CounterVec
	jobRunsTotal          *prometheus.CounterVec
	jobDurationSeconds    *prometheus.HistogramVec
	eventClientsActive    prometheus.Gauge
	dashboardCacheTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the agent.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_api_requests_total",
			Help: "Total number of API and webhook requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_api_latency_seconds",
			Help:    "Latency distribution for API and webhook requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		actionsQueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_actions_queued_total",
			Help: "Actions placed in the approval queue.",
		}, []string{"type"})

		actionDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_action_decisions_total",
			Help: "Approval decisions by outcome.",
		}, []string{"decision"})

		actionExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_action_executions_total",
			Help: "Executed actions by type and outcome.",
		}, []string{"type", "outcome"})

		actionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_actions_expired_total",
			Help: "Pending actions moved to expired.",
		})

		notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_notification_failures_total",
			Help: "Emails that could not be delivered.",
		}, []string{"kind"})

		jobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_job_runs_total",
			Help: "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"})

		jobDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_job_duration_seconds",
			Help:    "Duration of scheduled job runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"job"})

		eventClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_event_clients_active",
			Help: "Connected lifecycle event websocket clients.",
		})

		dashboardCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_dashboard_cache_total",
			Help: "Dashboard cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			actionsQueuedTotal, actionDecisionsTotal, actionExecutionsTotal, actionsExpiredTotal,
			notificationFailures, jobRunsTotal, jobDurationSeconds,
			eventClientsActive, dashboardCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

func ActionsQueued() *prometheus.CounterVec {
	RegisterMetrics()
	return actionsQueuedTotal
}

func ActionDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return actionDecisionsTotal
}

func ActionExecutions() *prometheus.CounterVec {
	RegisterMetrics()
	return actionExecutionsTotal
}

func ActionsExpired() prometheus.Counter {
	RegisterMetrics()
	return actionsExpiredTotal
}

// NotificationFailures counts best-effort emails that were dropped.
func NotificationFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationFailures
}

func JobRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return jobRunsTotal
}

func JobDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return jobDurationSeconds
}

func EventClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return eventClientsActive
}

func DashboardCache() *prometheus.CounterVec {
	RegisterMetrics()
	return dashboardCacheTotal
}
