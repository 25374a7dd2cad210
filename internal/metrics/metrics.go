// Package metrics exposes the server's Prometheus counters. It and the
// health package (for its /metrics handler) are the only packages in this
// repository that import prometheus/client_golang: the core webtransport
// and echo packages stay transport/metrics-agnostic and
// report through the small interfaces they define (echo.Observer), which
// *Metrics satisfies structurally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	echoes         *prometheus.CounterVec
	echoBytes      *prometheus.CounterVec
	streamErrors   prometheus.Counter
}

// New registers and returns the server's collectors against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "webtransport_echo_sessions_active",
			Help: "WebTransport sessions currently being served.",
		}),
		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webtransport_echo_sessions_total",
			Help: "WebTransport sessions established since startup.",
		}),
		echoes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "webtransport_echo_messages_total",
			Help: "Datagrams and streams echoed back to clients.",
		}, []string{"kind"}),
		echoBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "webtransport_echo_bytes_total",
			Help: "Bytes echoed back to clients on streams; datagram bytes are not counted.",
		}, []string{"kind"}),
		streamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webtransport_echo_stream_errors_total",
			Help: "Stream or datagram echo attempts that failed.",
		}),
	}
}

// SessionStarted records a newly established session. It returns a func to
// call when the session ends, which decrements the active gauge.
func (m *Metrics) SessionStarted() (done func()) {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
	return m.sessionsActive.Dec
}

// DatagramEchoed implements echo.Observer.
func (m *Metrics) DatagramEchoed() {
	m.echoes.WithLabelValues("datagram").Inc()
}

// UniStreamEchoed implements echo.Observer.
func (m *Metrics) UniStreamEchoed(n int) {
	m.echoes.WithLabelValues("uni_stream").Inc()
	m.echoBytes.WithLabelValues("uni_stream").Add(float64(n))
}

// BiStreamEchoed implements echo.Observer.
func (m *Metrics) BiStreamEchoed(n int) {
	m.echoes.WithLabelValues("bi_stream").Inc()
	m.echoBytes.WithLabelValues("bi_stream").Add(float64(n))
}

// StreamError implements echo.Observer.
func (m *Metrics) StreamError() {
	m.streamErrors.Inc()
}
