// Package metrics defines the Prometheus collectors exported by the authority
// and client processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gsync"

// Authority groups the server-side collectors.
type Authority struct {
	Ticks         prometheus.Counter
	PacketsSent   prometheus.Counter
	SendErrors    prometheus.Counter
	Dropped       *prometheus.CounterVec
	Claims        *prometheus.CounterVec
	Registrations prometheus.Counter
	Clients       prometheus.Gauge
	PayloadBytes  prometheus.Gauge
	TickDuration  prometheus.Histogram
}

// NewAuthority registers the authority collectors on reg. A nil reg uses a
// private registry, which keeps tests from colliding on the default one.
func NewAuthority(reg prometheus.Registerer) *Authority {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Authority{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "ticks_total",
			Help: "Broadcast ticks executed.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "packets_sent_total",
			Help: "Datagrams successfully handed to the transport.",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "send_errors_total",
			Help: "Datagrams the transport refused.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "packets_dropped_total",
			Help: "Inbound datagrams dropped during validation.",
		}, []string{"reason"}),
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "claims_total",
			Help: "Claim requests processed, by outcome.",
		}, []string{"outcome"}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "authority", Name: "registrations_total",
			Help: "Distinct endpoints registered via INIT.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "authority", Name: "clients",
			Help: "Endpoints in the registration set.",
		}),
		PayloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "authority", Name: "payload_bytes",
			Help: "Size of the last broadcast payload.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "authority", Name: "tick_duration_seconds",
			Help:    "Wall time spent building and sending one tick.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
	reg.MustRegister(m.Ticks, m.PacketsSent, m.SendErrors, m.Dropped, m.Claims,
		m.Registrations, m.Clients, m.PayloadBytes, m.TickDuration)
	return m
}

// Client groups the reception-side collectors.
type Client struct {
	Received     prometheus.Counter
	Duplicates   prometheus.Counter
	SequenceGaps prometheus.Counter
	Redundancy   prometheus.Counter
	Dropped      *prometheus.CounterVec
	ClaimsSent   prometheus.Counter
	Latency      prometheus.Histogram
}

func NewClient(reg prometheus.Registerer) *Client {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Client{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "snapshots_received_total",
			Help: "Validated SNAPSHOT packets received.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "duplicates_total",
			Help: "Snapshots whose sequence number was not ahead of the cursor.",
		}),
		SequenceGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "sequence_gaps_total",
			Help: "Sequence numbers skipped by forward jumps.",
		}),
		Redundancy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "redundant_blobs_total",
			Help: "Older snapshot blobs observed but not applied.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "packets_dropped_total",
			Help: "Inbound datagrams dropped during validation.",
		}, []string{"reason"}),
		ClaimsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "claims_sent_total",
			Help: "Claim requests issued (each sent twice).",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "client", Name: "latency_ms",
			Help:    "Receive time minus authority timestamp.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		}),
	}
	reg.MustRegister(m.Received, m.Duplicates, m.SequenceGaps, m.Redundancy, m.Dropped, m.ClaimsSent, m.Latency)
	return m
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
