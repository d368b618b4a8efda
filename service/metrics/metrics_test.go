package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestConnectionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnOpened()
	m.ConnOpened()
	m.ConnAuthenticated()
	m.ConnClosed(false)

	expected := `
		# HELP dyad_connections Live WebSocket connections
		# TYPE dyad_connections gauge
		dyad_connections{authenticated="false"} 0
		dyad_connections{authenticated="true"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.Connections, strings.NewReader(expected)))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Frame("message", 0.001)
	m.Frame("message", 0.002)
	m.Frame("typing", 0.001)
	m.AuthResult("success")
	m.Message("delivered")
	m.SlowConsumer()

	require.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("message")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Auth.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("delivered")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
	require.Equal(t, 2, testutil.CollectAndCount(m.HandleDuration))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ConnOpened()
		m.ConnAuthenticated()
		m.ConnClosed(true)
		m.Frame("x", 1)
		m.AuthResult("error")
		m.Message("sent")
		m.SlowConsumer()
	})
}
