package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectValue is the last result of each collect. Log collects report
	// one series per extracted tag set.
	CollectValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collector_value",
		Help: "Last value reported by a collect",
	}, []string{"metric", "collect", "tags"})

	// ActiveCollects is the number of collects assigned to this host.
	ActiveCollects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_collects",
		Help: "Collects currently evaluated on this host",
	})

	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_sync_failures_total",
		Help: "Failed pulls of collect definitions",
	})

	ProbeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_probe_errors_total",
		Help: "Probe failures by collect type",
	}, []string{"type"})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_config_reloads_total",
		Help: "Config file reloads by result",
	}, []string{"result"})
)
