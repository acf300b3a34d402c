package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the webhook relay.
// All methods are safe on a nil receiver so metrics stay optional.
type BridgeMetrics struct {
	inboundTotal        *prometheus.CounterVec
	outboundTotal       *prometheus.CounterVec
	catalogTotal        *prometheus.CounterVec
	completionTotal     *prometheus.CounterVec
	webhookLatency      *prometheus.HistogramVec
	activeConversations prometheus.Gauge
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends by status",
		}, []string{"status"}),
		catalogTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Catalog lookups by outcome (hit, miss, error kind)",
		}, []string{"outcome"}),
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "completion",
			Name:      "requests_total",
			Help:      "Completion requests by outcome (ok or error kind)",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook handling, including upstream calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		activeConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "conversation",
			Name:      "active_senders",
			Help:      "Senders currently holding an in-memory transcript",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.catalogTotal, m.completionTotal, m.webhookLatency, m.activeConversations)
	return m
}

func (m *BridgeMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *BridgeMetrics) ObserveCatalogLookup(outcome string) {
	if m == nil {
		return
	}
	m.catalogTotal.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) ObserveCompletion(outcome string) {
	if m == nil {
		return
	}
	m.completionTotal.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) ObserveWebhookLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(method).Observe(seconds)
}

func (m *BridgeMetrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.activeConversations.Set(float64(n))
}

// The accessors below let tests read individual series with prometheus/testutil.
// A nil *BridgeMetrics reads as zero.

func (m *BridgeMetrics) InboundCounter(outcome string) prometheus.Counter {
	if m == nil {
		return zeroCounter()
	}
	return m.inboundTotal.WithLabelValues(outcome)
}

func (m *BridgeMetrics) OutboundCounter(status string) prometheus.Counter {
	if m == nil {
		return zeroCounter()
	}
	return m.outboundTotal.WithLabelValues(status)
}

func (m *BridgeMetrics) CatalogCounter(outcome string) prometheus.Counter {
	if m == nil {
		return zeroCounter()
	}
	return m.catalogTotal.WithLabelValues(outcome)
}

func (m *BridgeMetrics) CompletionCounter(outcome string) prometheus.Counter {
	if m == nil {
		return zeroCounter()
	}
	return m.completionTotal.WithLabelValues(outcome)
}

func (m *BridgeMetrics) ActiveConversationsGauge() prometheus.Gauge {
	if m == nil {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: "unregistered"})
	}
	return m.activeConversations
}

func zeroCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered"})
}
