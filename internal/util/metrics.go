package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSyncedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_synced_total",
		Help: "Total number of orders persisted by the sync engine",
	}, []string{"result"})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_runs_total",
		Help: "Total number of order sync runs",
	}, []string{"status"})

	SyncErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_sync_errors_total",
		Help: "Total number of order sync errors",
	}, []string{"kind"})

	SyncRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_call_retries_total",
		Help: "Total number of retried remote platform calls",
	}, []string{"operation"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_sync_duration_seconds",
		Help:    "Duration of order sync runs",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	FanOutJobsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_jobs_scheduled_total",
		Help: "Total number of per-shop sync jobs scheduled by fan-out",
	})

	JobsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_executed_total",
		Help: "Total number of job executions",
	}, []string{"type", "status"})

	JobExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_execution_duration_seconds",
		Help:    "Duration of job executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	ScheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduled_jobs",
		Help: "Number of jobs with an active trigger",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of webhook events by outcome",
	}, []string{"type", "outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of notifications emitted",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
