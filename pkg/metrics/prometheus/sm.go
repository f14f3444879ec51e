// Package prometheus provides the Prometheus implementations of the
// metrics interfaces. Importing this package for side effects registers
// the constructors with pkg/metrics:
//
//	import _ "github.com/ethercflow/eRPC/pkg/metrics/prometheus"
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethercflow/eRPC/pkg/metrics"
)

func init() {
	metrics.RegisterSMMetricsConstructor(newSMMetrics)
}

// smMetrics is the Prometheus implementation of metrics.SMMetrics.
type smMetrics struct {
	packetsRouted    *prometheus.CounterVec
	packetsDropped   *prometheus.CounterVec
	sessionEvents    *prometheus.CounterVec
	retransmits      *prometheus.CounterVec
	sessionsInFlight *prometheus.GaugeVec
	openSessions     *prometheus.GaugeVec
}

func newSMMetrics() metrics.SMMetrics {
	reg := metrics.GetRegistry()

	return &smMetrics{
		packetsRouted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpc_sm_packets_routed_total",
				Help: "Management packets routed to an endpoint hook by the Nexus",
			},
			[]string{"pkt_type"},
		),
		packetsDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpc_sm_packets_dropped_total",
				Help: "Management packets discarded by the Nexus",
			},
			[]string{"reason"}, // "malformed", "unknown_app_tid"
		),
		sessionEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpc_sm_session_events_total",
				Help: "Session management events delivered to the application",
			},
			[]string{"event", "err_type"},
		),
		retransmits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "erpc_sm_retransmits_total",
				Help: "Management request retransmissions",
			},
			[]string{"pkt_type"},
		),
		sessionsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "erpc_sm_sessions_in_flight",
				Help: "Sessions with an in-progress management request, per endpoint",
			},
			[]string{"app_tid"},
		),
		openSessions: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "erpc_sm_open_sessions",
				Help: "Live sessions owned by an endpoint",
			},
			[]string{"app_tid"},
		),
	}
}

func (m *smMetrics) RecordPacketRouted(pktType string) {
	m.packetsRouted.WithLabelValues(pktType).Inc()
}

func (m *smMetrics) RecordPacketDropped(reason string) {
	m.packetsDropped.WithLabelValues(reason).Inc()
}

func (m *smMetrics) RecordSessionEvent(event string, errType string) {
	m.sessionEvents.WithLabelValues(event, errType).Inc()
}

func (m *smMetrics) RecordRetransmit(pktType string) {
	m.retransmits.WithLabelValues(pktType).Inc()
}

func (m *smMetrics) SetSessionsInFlight(appTID uint8, n int) {
	m.sessionsInFlight.WithLabelValues(strconv.Itoa(int(appTID))).Set(float64(n))
}

func (m *smMetrics) SetOpenSessions(appTID uint8, n int) {
	m.openSessions.WithLabelValues(strconv.Itoa(int(appTID))).Set(float64(n))
}
