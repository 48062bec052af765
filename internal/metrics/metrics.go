// Package metrics defines the internal Prometheus collectors for bt2c-node.
// Grounded on the teacher's chain/monitoring/metrics.go MetricsServer field
// set (block height/time, tx pool size, validator uptime/stake gauges,
// slashing counter, peer count) plus jail and reorg collectors, and — per
// spec.md's non-goals excluding metrics
// *exporters* — registered against a private registry with no promhttp
// handler wired up. A host process embedding this core is free to mount
// one; this package only provides the collectors themselves.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every Prometheus metric bt2c-node registers. cmd/bt2c-node
// updates BlockHeight, TransactionCount, MempoolSize, SlashingEvents,
// JailEvents and ReorgDepth; BlockTime, ValidatorCount, ValidatorStake,
// ValidatorUptime and PeerCount are registered but not updated anywhere.
type Collectors struct {
	Registry *prometheus.Registry

	BlockHeight      prometheus.Gauge
	BlockTime        prometheus.Histogram
	TransactionCount prometheus.Counter
	MempoolSize      prometheus.Gauge

	ValidatorCount  prometheus.Gauge
	ValidatorStake  *prometheus.GaugeVec
	ValidatorUptime *prometheus.GaugeVec
	SlashingEvents  prometheus.Counter
	JailEvents      prometheus.Counter

	PeerCount prometheus.Gauge
	ReorgDepth prometheus.Histogram
}

// New constructs and registers every collector against a fresh private
// registry.
func New() *Collectors {
	registry := prometheus.NewRegistry()

	c := &Collectors{
		Registry: registry,
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bt2c_block_height",
			Help: "Current chain height.",
		}),
		BlockTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bt2c_block_time_seconds",
			Help:    "Observed time between consecutive blocks.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		TransactionCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bt2c_transactions_total",
			Help: "Total transactions included in appended blocks.",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bt2c_mempool_size",
			Help: "Number of transactions currently queued in the mempool.",
		}),
		ValidatorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bt2c_validator_count",
			Help: "Number of active validators.",
		}),
		ValidatorStake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bt2c_validator_stake",
			Help: "Effective stake per validator.",
		}, []string{"validator"}),
		ValidatorUptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bt2c_validator_uptime_percent",
			Help: "Uptime percentage per validator.",
		}, []string{"validator"}),
		SlashingEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bt2c_slashing_events_total",
			Help: "Total slashing events applied.",
		}),
		JailEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bt2c_jail_events_total",
			Help: "Total validator jailing events.",
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bt2c_peer_count",
			Help: "Number of connected transport peers.",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bt2c_reorg_depth",
			Help:    "Depth of chain reorganizations.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}

	registry.MustRegister(
		c.BlockHeight, c.BlockTime, c.TransactionCount, c.MempoolSize,
		c.ValidatorCount, c.ValidatorStake, c.ValidatorUptime,
		c.SlashingEvents, c.JailEvents, c.PeerCount, c.ReorgDepth,
	)
	return c
}
