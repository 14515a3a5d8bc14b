package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the gateway. It is passed
// explicitly to the components that record into it; a nil *Metrics records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	ledgerCalls        *prometheus.CounterVec
	ledgerCallDuration *prometheus.HistogramVec

	provisions     *prometheus.CounterVec
	balanceLookups *prometheus.CounterVec
	intents        *prometheus.CounterVec
	txTransitions  *prometheus.CounterVec
	verifications  *prometheus.CounterVec

	notificationsPublished *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance and registers its collectors. If registry is
// nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ledgerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_ledger_calls_total",
				Help: "Ledger client calls by method and status",
			},
			[]string{"method", "status"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phonewallet_ledger_call_duration_seconds",
				Help:    "Duration of ledger client calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		provisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_provisions_total",
				Help: "Wallet provisioning calls by outcome",
			},
			[]string{"outcome"},
		),
		balanceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_balance_lookups_total",
				Help: "Balance cache lookups by result (hit, miss, stale, error)",
			},
			[]string{"result"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_payment_intents_total",
				Help: "Payment intents presented by rendering result",
			},
			[]string{"result"},
		),
		txTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_transaction_transitions_total",
				Help: "Committed transaction state transitions by target state",
			},
			[]string{"state"},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_verifications_total",
				Help: "Phone verification checks by result",
			},
			[]string{"result"},
		),
		notificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_notifications_published_total",
				Help: "Transaction notifications published by status",
			},
			[]string{"status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonewallet_http_requests_total",
				Help: "HTTP requests by route, method and status class",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phonewallet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// RecordLedgerCall records a ledger client call with its duration.
func (m *Metrics) RecordLedgerCall(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ledgerCalls.WithLabelValues(method, status).Inc()
	m.ledgerCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordProvision records the outcome of a provisioning call.
func (m *Metrics) RecordProvision(outcome string) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(outcome).Inc()
}

// RecordBalanceLookup records a balance cache lookup result.
func (m *Metrics) RecordBalanceLookup(result string) {
	if m == nil {
		return
	}
	m.balanceLookups.WithLabelValues(result).Inc()
}

// RecordIntent records whether a payment intent was rendered or fell back to text.
func (m *Metrics) RecordIntent(result string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(result).Inc()
}

// RecordTransition records a committed transaction state transition.
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.txTransitions.WithLabelValues(state).Inc()
}

// RecordVerification records the result of a phone verification check.
func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

// RecordNotification records a notification publish attempt.
func (m *Metrics) RecordNotification(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.notificationsPublished.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusClass(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
