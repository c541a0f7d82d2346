package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics exposes counters and gauges for the booking and payment
// workflow. All methods are nil-safe so wiring metrics stays optional.
type WorkflowMetrics struct {
	availabilityTotal *prometheus.CounterVec
	bookingsTotal     *prometheus.CounterVec
	paymentsTotal     *prometheus.CounterVec
	pollTicksTotal    prometheus.Counter
	activePollers     prometheus.Gauge
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaportal",
			Subsystem: "booking",
			Name:      "availability_checks_total",
			Help:      "Availability probes by outcome",
		}, []string{"outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaportal",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaportal",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payment settlements by method and outcome",
		}, []string{"method", "outcome"}),
		pollTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spaportal",
			Subsystem: "billing",
			Name:      "poll_ticks_total",
			Help:      "Invoice status poll attempts",
		}),
		activePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spaportal",
			Subsystem: "billing",
			Name:      "active_pollers",
			Help:      "Payment pollers currently running",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.bookingsTotal, m.paymentsTotal, m.pollTicksTotal, m.activePollers)
	return m
}

func (m *WorkflowMetrics) ObserveAvailability(outcome string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) ObservePayment(method, outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *WorkflowMetrics) ObservePollTick() {
	if m == nil {
		return
	}
	m.pollTicksTotal.Inc()
}

func (m *WorkflowMetrics) PollerStarted() {
	if m == nil {
		return
	}
	m.activePollers.Inc()
}

func (m *WorkflowMetrics) PollerStopped() {
	if m == nil {
		return
	}
	m.activePollers.Dec()
}
