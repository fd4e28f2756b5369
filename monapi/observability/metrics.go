package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts handled requests by route pattern and status code.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_requests_total",
		Help: "HTTP requests handled, by route and status",
	}, []string{"method", "route", "status"})

	// APIRequestDuration tracks request latency by route pattern.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monapi_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// APIRateLimited tracks requests rejected by the rate limiter.
	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_rate_limited_total",
		Help: "API requests rejected by rate limiter",
	}, []string{"endpoint"})

	// WeightUpdates counts persisted reorders by list kind (subclass, chart)
	// and the operation that caused them.
	WeightUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_weight_updates_total",
		Help: "Persisted weight reassignments",
	}, []string{"kind", "op"})

	// RefreshTicks counts countdown expiries that re-anchored a screen.
	RefreshTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monapi_refresh_ticks_total",
		Help: "Auto-refresh cycles completed",
	})

	// RefreshSessions is the number of open refresh websocket sessions.
	RefreshSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monapi_refresh_sessions",
		Help: "Open auto-refresh websocket sessions",
	})

	// RefreshDropped counts messages dropped because a session fell behind.
	RefreshDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monapi_refresh_dropped_total",
		Help: "Refresh websocket messages dropped on a full session queue",
	})

	// RefreshSessionsRejected counts websocket upgrades refused at the cap.
	RefreshSessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monapi_refresh_sessions_rejected_total",
		Help: "Refresh sessions rejected because the connection cap was reached",
	})

	// NotifyPushes counts queued notify messages by channel and outcome.
	NotifyPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_notify_pushes_total",
		Help: "Notify messages queued, by channel and result",
	}, []string{"type", "result"})

	// NotifyBreakerState is 0 closed, 1 half open, 2 open.
	NotifyBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monapi_notify_breaker_state",
		Help: "State of the notify queue circuit breaker",
	})

	// NotifyDropped counts events that produced no message.
	NotifyDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_notify_dropped_total",
		Help: "Events dropped before fan-out",
	}, []string{"reason"})

	// EventPublishFailures tracks failed change-event publishes (best effort).
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monapi_event_publish_failures_total",
		Help: "Failed change-event publish attempts",
	}, []string{"topic"})
)
