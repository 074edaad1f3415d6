// Package metrics exposes the Gateway and Governance cores' operational
// counters (C12) through a dedicated Prometheus registry, kept separate
// from the default global registry so gatewayd's /metrics endpoint never
// picks up process metrics registered by an imported library as a side
// effect.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the named counters and gauges driven by every
// successful state transition in pkg/session, pkg/approval, pkg/rotation
// and pkg/governance.
type Registry struct {
	registry *prometheus.Registry

	SessionsOpened        prometheus.Counter
	SignaturesVerified    prometheus.Counter
	SessionsQuorumReached prometheus.Counter
	MessagesApproved      prometheus.Counter
	MessagesConsumed      prometheus.Counter
	Rotations             prometheus.Counter
	CurrentEpoch          prometheus.Gauge
	ProposalsScheduled    prometheus.Counter
	ProposalsExecuted     prometheus.Counter
	ContractCallsEmitted  prometheus.Counter
}

// NewRegistry constructs a Registry with every metric registered under
// the gateway_ namespace.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sessions_opened_total",
			Help: "Number of signature-verification sessions opened.",
		}),
		SignaturesVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_signatures_verified_total",
			Help: "Number of individual signer verifications accepted.",
		}),
		SessionsQuorumReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sessions_quorum_reached_total",
			Help: "Number of sessions that transitioned from invalid to valid.",
		}),
		MessagesApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_messages_approved_total",
			Help: "Number of incoming messages approved.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_messages_consumed_total",
			Help: "Number of approved messages consumed exactly once.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rotations_total",
			Help: "Number of successful verifier-set rotations.",
		}),
		CurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_current_epoch",
			Help: "The Gateway's current epoch as of the last observed rotation.",
		}),
		ProposalsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_proposals_scheduled_total",
			Help: "Number of Governance proposals scheduled.",
		}),
		ProposalsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_proposals_executed_total",
			Help: "Number of Governance proposals executed, permissionless or operator fast-path.",
		}),
		ContractCallsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_contract_calls_emitted_total",
			Help: "Number of call_contract instructions that emitted a ContractCall event.",
		}),
	}

	reg.MustRegister(
		r.SessionsOpened,
		r.SignaturesVerified,
		r.SessionsQuorumReached,
		r.MessagesApproved,
		r.MessagesConsumed,
		r.Rotations,
		r.CurrentEpoch,
		r.ProposalsScheduled,
		r.ProposalsExecuted,
		r.ContractCallsEmitted,
	)

	return r
}

// Gatherer exposes the underlying *prometheus.Registry for the /metrics
// HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
