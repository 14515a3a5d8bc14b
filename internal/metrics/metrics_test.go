package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLedgerCall("balance", nil, 10*time.Millisecond)
	m.RecordLedgerCall("balance", errors.New("boom"), time.Millisecond)
	m.RecordBalanceLookup("hit")
	m.RecordBalanceLookup("hit")
	m.RecordTransition("confirmed")
	m.RecordHTTPRequest("/api/v1/wallets", "POST", 201, time.Millisecond)
	m.RecordHTTPRequest("/api/v1/wallets", "POST", 503, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCalls.WithLabelValues("balance", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCalls.WithLabelValues("balance", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.balanceLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txTransitions.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/wallets", "POST", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/wallets", "POST", "5xx")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLedgerCall("derive", nil, time.Second)
		m.RecordProvision("created")
		m.RecordBalanceLookup("miss")
		m.RecordIntent("fallback")
		m.RecordTransition("failed")
		m.RecordVerification("verified")
		m.RecordNotification(nil)
		m.RecordHTTPRequest("/", "GET", 200, time.Second)
	})
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "unknown", statusClass(42))
}
