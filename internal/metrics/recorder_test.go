package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/stackprobe/pkg/types"
)

func sampleReport() *types.AggregateReport {
	r := &types.AggregateReport{}
	r.Transport.EfficiencyScore = 0.8
	r.Transport.TotalTransportOverhead = 93
	r.Transport.UDPDiscoveryTimeMs = 0.2
	r.Transport.TCPConnectionTimeMs = 0.3
	r.Transport.NetworkPerformance.UDPThroughputMbps = 100
	r.Transport.NetworkPerformance.ConcurrentConnections = 10
	r.Session.SessionEfficiency = 0.59
	r.Session.CommissioningTimeMs = 450
	r.Session.SessionOverheadBytes = 342
	r.Presentation.EncodingEfficiency = 0.6
	r.Application.InteroperabilityScore = 0.87
	r.Summary.OverallEfficiency = 0.715
	r.Summary.TotalOverheadBytes = 900
	return r
}

func TestObserveReport(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveStep(types.LayerSession, 450*time.Millisecond)
	rec.ObserveReport(sampleReport(), time.Second)

	assert.Equal(t, 0.59, testutil.ToFloat64(rec.layerScore.WithLabelValues("session")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(rec.layerLatency.WithLabelValues("transport")), 1e-9)
	assert.Equal(t, 342.0, testutil.ToFloat64(rec.layerOverhead.WithLabelValues("session")))
	assert.Equal(t, 0.45, testutil.ToFloat64(rec.layerDuration.WithLabelValues("session")))
	assert.Equal(t, 100.0, testutil.ToFloat64(rec.udpThroughput))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.concurrent))
	assert.Equal(t, 0.715, testutil.ToFloat64(rec.overall))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("done", "")))
}

func TestObserveFailure(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveFailure(types.LayerSession, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("failed", "session")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.runDuration))
}

func TestWriteTextfile(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveReport(sampleReport(), time.Second)

	path := filepath.Join(t.TempDir(), "stackprobe.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.Contains(body, `stackprobe_layer_efficiency_score{layer="application"} 0.87`), body)
	assert.True(t, strings.Contains(body, "# TYPE stackprobe_runs_total counter"), body)
}

func TestWriteTextfileBadDir(t *testing.T) {
	rec := NewRecorder()
	err := rec.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
