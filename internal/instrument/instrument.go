// Package instrument holds the relay's prometheus metrics.
//
// Metrics are registered on a Metrics-owned registry rather than the global
// default so that tests can build as many relays as they like.
package instrument

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cipherchat_relay"

// Metrics counts what the relay does. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	connectedClients   prometheus.Gauge
	connectionsTotal   prometheus.Counter
	recordsReceived    *prometheus.CounterVec
	envelopesForwarded prometheus.Counter
	keysPublished      prometheus.Counter
	errorNotices       *prometheus.CounterVec
	droppedFrames      prometheus.Counter
	directoryErrors    prometheus.Counter
}

// New creates and registers the relay metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of identities currently registered in the directory",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Number of accepted connections",
		}),
		recordsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_received_total",
			Help:      "Number of records received from clients by type",
		}, []string{"type"}),
		envelopesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_forwarded_total",
			Help:      "Number of encrypted envelopes forwarded to a recipient",
		}),
		keysPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "public_keys_published_total",
			Help:      "Number of public keys stored and broadcast",
		}),
		errorNotices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_notices_total",
			Help:      "Number of error notices sent to clients by code",
		}, []string{"code"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Number of outbound frames refused by a closed or full connection queue",
		}),
		directoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_inconsistencies_total",
			Help:      "Number of directory operations that found state they should not have",
		}),
	}
	m.registry.MustRegister(
		m.connectedClients,
		m.connectionsTotal,
		m.recordsReceived,
		m.envelopesForwarded,
		m.keysPublished,
		m.errorNotices,
		m.droppedFrames,
		m.directoryErrors,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectedClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

func (m *Metrics) RecordReceived(typ string) {
	if m == nil {
		return
	}
	m.recordsReceived.WithLabelValues(typ).Inc()
}

func (m *Metrics) EnvelopeForwarded() {
	if m == nil {
		return
	}
	m.envelopesForwarded.Inc()
}

func (m *Metrics) KeyPublished() {
	if m == nil {
		return
	}
	m.keysPublished.Inc()
}

func (m *Metrics) ErrorNotice(code string) {
	if m == nil {
		return
	}
	m.errorNotices.WithLabelValues(code).Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.droppedFrames.Inc()
}

func (m *Metrics) DirectoryInconsistency() {
	if m == nil {
		return
	}
	m.directoryErrors.Inc()
}
