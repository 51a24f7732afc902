package relayd

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightninglabs/subrelay/test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// TestMetricsRouter asserts that the router serves the gathered metrics and
// the liveness probe.
func TestMetricsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_test_total",
		Help: "Test counter.",
	})
	reg.MustRegister(counter)
	counter.Inc()

	server := httptest.NewServer(newMetricsRouter(reg))
	defer server.Close()

	body := get(t, server.URL+"/metrics", http.StatusOK)
	require.Contains(t, body, "relay_test_total 1")

	require.Equal(t, "ok", get(t, server.URL+"/healthz", http.StatusOK))

	get(t, server.URL+"/cycles", http.StatusNotFound)
}

func get(t *testing.T, url string, status int) string {
	t.Helper()

	resp, err := http.Get(url) // nolint:gosec
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, status, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

// TestDaemonStartStop starts the daemon against unreachable wallets and
// asserts that it serves metrics and shuts down cleanly.
func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsListen = "127.0.0.1:0"
	require.NoError(t, Validate(&cfg))

	// Pre-generate a small key pair to keep the test fast.
	_, err := keys.Generate(cfg.KeyDir, test.KeyBits)
	require.NoError(t, err)

	d := New(&cfg)
	require.NoError(t, d.Start())

	addr := d.metricsListener.Addr().String()
	body := get(t, fmt.Sprintf("http://%v/metrics", addr), http.StatusOK)
	require.Contains(t, body, "subrelay_processor_forwarded_satoshis_total")

	d.Stop()
	require.NoError(t, <-d.ErrChan)
}

// TestDaemonMissingKeys asserts that the daemon refuses to start without a
// key pair unless it may generate one.
func TestDaemonMissingKeys(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Validate(&cfg))

	d := New(&cfg)
	require.ErrorIs(t, d.Start(), keys.ErrKeysNotFound)
}
