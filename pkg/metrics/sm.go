// Package metrics defines optional observability interfaces for the
// session management plane. Implementations are injected where needed;
// passing nil disables collection with zero overhead.
package metrics

// SMMetrics provides observability for the session management plane: the
// Nexus packet demultiplexer and the per-endpoint state machines.
type SMMetrics interface {
	// RecordPacketRouted records an inbound management packet delivered to
	// an endpoint hook. pktType is the packet type string.
	RecordPacketRouted(pktType string)

	// RecordPacketDropped records an inbound management packet discarded by
	// the Nexus. reason is one of "malformed", "unknown_app_tid".
	RecordPacketDropped(reason string)

	// RecordSessionEvent records a session management event delivered to
	// the application, with the error type attached to the event.
	RecordSessionEvent(event string, errType string)

	// RecordRetransmit records one management request retransmission.
	RecordRetransmit(pktType string)

	// SetSessionsInFlight sets the number of sessions with an in-progress
	// management request on one endpoint.
	SetSessionsInFlight(appTID uint8, n int)

	// SetOpenSessions sets the number of live (non-buried) sessions owned
	// by one endpoint.
	SetOpenSessions(appTID uint8, n int)
}

// NewSMMetrics creates a Prometheus-backed SMMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers pass nil down, which disables collection with
// zero overhead.
func NewSMMetrics() SMMetrics {
	if !IsEnabled() || newPrometheusSMMetrics == nil {
		return nil
	}
	return newPrometheusSMMetrics()
}

// newPrometheusSMMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle between the interface package and
// the implementation package.
var newPrometheusSMMetrics func() SMMetrics

// RegisterSMMetricsConstructor registers the Prometheus SMMetrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterSMMetricsConstructor(constructor func() SMMetrics) {
	newPrometheusSMMetrics = constructor
}
