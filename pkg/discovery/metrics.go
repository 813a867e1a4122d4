package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_discovery_cycles_total",
		Help: "Completed discovery cycles.",
	})
	cyclesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_discovery_cycles_coalesced_total",
		Help: "Refresh triggers ignored because a cycle was already in flight.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stacks_discovery_cycle_duration_seconds",
		Help:    "Wall time of one full discovery cycle across all clusters.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	clusterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stacks_discovery_cluster_failures_total",
		Help: "Cluster passes abandoned due to connectivity failures.",
	}, []string{"cluster"})
	stacksDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stacks_discovered",
		Help: "Stacks currently in the published set.",
	})
)
