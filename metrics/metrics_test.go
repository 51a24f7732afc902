package metrics

import (
	"testing"

	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestEventWriter asserts that events are counted by code and passed on.
func TestEventWriter(t *testing.T) {
	m := New(prometheus.NewRegistry())
	recorder := &eventlog.Recorder{}

	w := m.EventWriter(recorder)
	w.WriteLog("SEL_004", "unreachable", nil)
	w.WriteLog("SEL_004", "unreachable", nil)
	w.WriteLog("PROC_007", "send failed", eventlog.Fields{"a": 1})

	require.Equal(
		t, []eventlog.Code{"SEL_004", "SEL_004", "PROC_007"},
		recorder.Codes(),
	)
	require.Equal(
		t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("SEL_004")),
	)
	require.Equal(
		t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("PROC_007")),
	)
}

// TestObserve covers the cycle and transaction collectors.
func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("Processed", 1.5)
	m.ObserveCycle("Idle", 0.2)
	m.ObserveCycle("Processed", 0.7)
	m.ObserveTransactions(3, 1, 300_000)
	m.SetPartnerBalance(5_000_000)

	require.Equal(
		t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("Processed")),
	)
	require.Equal(
		t, 3.0, testutil.ToFloat64(
			m.transactions.WithLabelValues(ResultForwarded),
		),
	)
	require.Equal(
		t, 1.0, testutil.ToFloat64(
			m.transactions.WithLabelValues(ResultReturned),
		),
	)
	require.Equal(t, 300_000.0, testutil.ToFloat64(m.forwardedSat))
	require.Equal(t, 5_000_000.0, testutil.ToFloat64(m.partnerBalance))

	count, err := testutil.GatherAndCount(
		reg, "subrelay_relay_cycle_duration_seconds",
	)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
