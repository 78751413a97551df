package metrics

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("lucene", "ok", time.Millisecond, 3)
	m.CacheResult(true)
	m.IndexOperation("createNode", "SYNCHRONOUS")
	m.PermissionTruncated()
	m.BreakerState("cache", 1)
}

func TestCountersRecord(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveQuery("lucene", "ok", time.Millisecond, 3)
	m.ObserveQuery("lucene", "parse_error", time.Millisecond, 0)
	m.MarkerDrained("CREATE")
	m.BreakerState("query-cache", 2)

	require.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("lucene", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("lucene", "parse_error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MarkersDrainedTotal.WithLabelValues("CREATE")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("query-cache")))
}

func TestStartServerReportsBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = StartServer(ctx, ln.Addr().(*net.TCPAddr).Port, "test")
	require.ErrorContains(t, err, "metrics listener")
}
