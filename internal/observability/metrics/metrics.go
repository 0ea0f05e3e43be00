package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogMetrics exposes counters/histograms for dialog processing.
type DialogMetrics struct {
	messagesTotal    *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	processLatency   *prometheus.HistogramVec
	paymentAttempts  *prometheus.CounterVec
	resolutionScores prometheus.Histogram
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "messages_total",
			Help:      "Total processed messages by intent and action",
		}, []string{"intent", "action"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "bookings_total",
			Help:      "Total booking flows by terminal outcome",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "active_sessions",
			Help:      "Live sessions currently held in the store",
		}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "process_latency_seconds",
			Help:      "Latency of message processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		paymentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "payment_attempts_total",
			Help:      "Settlement attempts by result",
		}, []string{"result"}),
		resolutionScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consultly",
			Subsystem: "dialog",
			Name:      "provider_resolution_score",
			Help:      "Similarity score of accepted provider resolutions",
			Buckets:   prometheus.LinearBuckets(0.3, 0.1, 8),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.messagesTotal,
		m.bookingsTotal,
		m.activeSessions,
		m.processLatency,
		m.paymentAttempts,
		m.resolutionScores,
	)
	return m
}

func (m *DialogMetrics) ObserveMessage(intent, action string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(intent, action).Inc()
}

func (m *DialogMetrics) ObserveBookingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *DialogMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *DialogMetrics) ObserveProcessLatency(intent string, seconds float64) {
	if m == nil {
		return
	}
	m.processLatency.WithLabelValues(intent).Observe(seconds)
}

func (m *DialogMetrics) ObservePayment(approved bool) {
	if m == nil {
		return
	}
	result := "declined"
	if approved {
		result = "approved"
	}
	m.paymentAttempts.WithLabelValues(result).Inc()
}

func (m *DialogMetrics) ObserveResolutionScore(score float64) {
	if m == nil {
		return
	}
	m.resolutionScores.Observe(score)
}
