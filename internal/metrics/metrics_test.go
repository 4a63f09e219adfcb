package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetQueueLength(3)
	m.SetOnline(true)
	m.ObserveDrain("completed", 20*time.Millisecond)
	m.ItemProcessed("insert", "success")
	m.ItemProcessed("insert", "success")
	m.Reconciled("ambiguous")
	m.Verified("invalid")
	m.ObserveHTTP("GET", "/status", "200", time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.online))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.drains.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues("insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliation.WithLabelValues("ambiguous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/status", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetQueueLength(1)
	m.SetOnline(false)
	m.ObserveDrain("error", time.Second)
	m.ItemProcessed("delete", "failure")
	m.Reconciled("error")
	m.Verified("error")
	m.ObserveHTTP("POST", "/sync", "500", time.Second)
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
