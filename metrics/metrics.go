// Package metrics holds the Prometheus collectors of the engine. They are
// registered on a dedicated registry exposed by the API at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrow"

// Outcome labels of a transition.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Registry is the registry every engine collector is registered on.
var Registry = prometheus.NewRegistry()

var (
	// Transitions counts finished transitions by operation and outcome.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Finished transitions by operation and outcome.",
	}, []string{"operation", "outcome"})

	// TransitionDuration observes the wall time of successful transitions.
	TransitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transition_duration_seconds",
		Help:      "Duration of successful transitions.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"operation"})

	// ProofDuration observes the time spent waiting for proofs.
	ProofDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_duration_seconds",
		Help:      "Duration of proof generation requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"circuit"})

	// Joins counts join sub-transitions run to defragment balances.
	Joins = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "joins_total",
		Help:      "Join sub-transitions executed.",
	})

	// Nullifiers counts nullifiers committed to the tracker.
	Nullifiers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "nullifiers_total",
		Help:      "Nullifiers committed.",
	})

	// ReceivedCommitments counts commitments discovered from encrypted
	// payloads addressed to this node.
	ReceivedCommitments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_commitments_total",
		Help:      "Commitments received from other parties.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Transitions,
		TransitionDuration,
		ProofDuration,
		Joins,
		Nullifiers,
		ReceivedCommitments,
	)
}

// ObserveTransition records the outcome of a transition started at start.
func ObserveTransition(operation, outcome string, start time.Time) {
	Transitions.WithLabelValues(operation, outcome).Inc()
	if outcome == OutcomeOK {
		TransitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// ObserveProof records the time spent generating a proof of circuit.
func ObserveProof(circuit string, start time.Time) {
	ProofDuration.WithLabelValues(circuit).Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
