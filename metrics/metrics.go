// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics registers the node's Prometheus collectors. One
// instance is owned by the orchestrator and threaded through the
// components that report observations; nothing here is a package-level
// singleton.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the node reports.
type Metrics struct {
	Registry prometheus.Registerer

	PeersConnected   prometheus.Gauge
	JudgmentsSeen    prometheus.Counter
	BlocksProposed   prometheus.Counter
	BlocksConfirmed  prometheus.Counter
	BlocksFinalized  prometheus.Counter
	Equivocations    prometheus.Counter
	ForksDetected    prometheus.Counter
	GossipDropped    prometheus.Counter
	SelfEScore       prometheus.Gauge
	ThermoEfficiency prometheus.Gauge
}

// New registers and returns a Metrics bound to reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registry: reg,
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "judgenet", Name: "peers_connected", Help: "Currently connected peers.",
		}),
		JudgmentsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "judgments_seen_total", Help: "Judgments accepted into a proposal.",
		}),
		BlocksProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "blocks_proposed_total", Help: "Blocks this node has proposed.",
		}),
		BlocksConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "blocks_confirmed_total", Help: "Blocks observed crossing quorum.",
		}),
		BlocksFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "blocks_finalized_total", Help: "Blocks reaching finality depth.",
		}),
		Equivocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "equivocations_total", Help: "Detected equivocating proposals.",
		}),
		ForksDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "forks_detected_total", Help: "Slots observed with >=2 branches.",
		}),
		GossipDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judgenet", Name: "gossip_dropped_total", Help: "Gossip messages dropped (dedup or backpressure).",
		}),
		SelfEScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "judgenet", Name: "self_escore", Help: "This node's own E-Score.",
		}),
		ThermoEfficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "judgenet", Name: "thermo_efficiency", Help: "Current thermodynamic efficiency signal.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.PeersConnected, m.JudgmentsSeen, m.BlocksProposed, m.BlocksConfirmed,
		m.BlocksFinalized, m.Equivocations, m.ForksDetected, m.GossipDropped,
		m.SelfEScore, m.ThermoEfficiency,
	} {
		_ = reg.Register(c) // duplicate registration on a shared registry is a no-op error we tolerate
	}
	return m
}
