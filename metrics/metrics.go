// Package metrics exposes the relay's prometheus collectors.
package metrics

import (
	"sync"

	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "subrelay"

	// ResultForwarded labels transactions that reached the partner.
	ResultForwarded = "forwarded"

	// ResultReturned labels transactions that go back to their senders.
	ResultReturned = "returned"
)

// Metrics holds the relay collectors.
type Metrics struct {
	events         *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	transactions   *prometheus.CounterVec
	forwardedSat   prometheus.Counter
	partnerBalance prometheus.Gauge
	cycleDuration  prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the metrics registered with the default prometheus
// registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})

	return defaultMetrics
}

// New creates the relay collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "events_total",
			Help:      "Total coded failure events by code.",
		}, []string{"code"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cycles_total",
			Help:      "Total relay cycles by outcome.",
		}, []string{"outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "transactions_total",
			Help:      "Total processed transactions by result.",
		}, []string{"result"}),
		forwardedSat: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "forwarded_satoshis_total",
			Help:      "Total amount forwarded to outgoing servers.",
		}),
		partnerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "partner_balance_satoshis",
			Help:      "Balance reported by the last selected outgoing server.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of relay cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.events, m.cycles, m.transactions, m.forwardedSat,
		m.partnerBalance, m.cycleDuration,
	)

	return m
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(outcome string, seconds float64) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(seconds)
}

// ObserveTransactions records the results of a batch run.
func (m *Metrics) ObserveTransactions(forwarded, returned int,
	forwardedSat int64) {

	m.transactions.WithLabelValues(ResultForwarded).Add(float64(forwarded))
	m.transactions.WithLabelValues(ResultReturned).Add(float64(returned))
	m.forwardedSat.Add(float64(forwardedSat))
}

// SetPartnerBalance records the balance of the selected partner.
func (m *Metrics) SetPartnerBalance(sat int64) {
	m.partnerBalance.Set(float64(sat))
}

// EventWriter wraps an event writer so that every event is also counted.
func (m *Metrics) EventWriter(next eventlog.Writer) eventlog.Writer {
	return &countingWriter{next: next, events: m.events}
}

// countingWriter counts events by code before passing them on.
type countingWriter struct {
	next   eventlog.Writer
	events *prometheus.CounterVec
}

func (c *countingWriter) WriteLog(code eventlog.Code, msg string,
	fields eventlog.Fields) {

	c.events.WithLabelValues(string(code)).Inc()
	c.next.WriteLog(code, msg, fields)
}
